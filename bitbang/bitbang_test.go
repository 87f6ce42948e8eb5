// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitbang

import (
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/GermanBionicSystems/onewire/bitbang/bitbangtest"
	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/onewire"
)

// recorder is a Line and Delayer logging every operation in order.
type recorder struct {
	ops    []string
	levels []bool // levels returned by successive samples, high when empty
	err    error  // returned by DriveLow
}

func (r *recorder) DriveLow() error {
	r.ops = append(r.ops, "low")
	return r.err
}

func (r *recorder) Release() error {
	r.ops = append(r.ops, "release")
	return nil
}

func (r *recorder) IsHigh() (bool, error) {
	r.ops = append(r.ops, "sample")
	return r.level(), nil
}

func (r *recorder) IsLow() (bool, error) {
	r.ops = append(r.ops, "sample")
	return !r.level(), nil
}

func (r *recorder) DelayMicros(us uint16) {
	r.ops = append(r.ops, "wait "+strconv.Itoa(int(us)))
}

func (r *recorder) level() bool {
	if len(r.levels) == 0 {
		return true
	}
	v := r.levels[0]
	r.levels = r.levels[1:]
	return v
}

// written decodes the bytes written in ops from the low pulse widths.
func written(t *testing.T, ops []string) []byte {
	var out []byte
	var v byte
	n := 0
	for i, op := range ops {
		if op != "low" {
			continue
		}
		var bit byte
		switch ops[i+1] {
		case "wait 6":
			bit = 1
		case "wait 60":
		case "wait 480":
			continue
		default:
			t.Fatalf("unexpected pulse %q", ops[i+1])
		}
		v |= bit << uint(n)
		if n++; n == 8 {
			out = append(out, v)
			v, n = 0, 0
		}
	}
	if n != 0 {
		t.Fatalf("%d trailing bits", n)
	}
	return out
}

func newRecorded(t *testing.T, levels ...bool) (*Bus, *recorder) {
	r := &recorder{}
	b, err := New(r, r, nil)
	if err != nil {
		t.Fatal(err)
	}
	r.ops = nil
	r.levels = levels
	return b, r
}

func TestNew(t *testing.T) {
	r := &recorder{}
	b, err := New(r, r, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(r.ops, []string{"release"}); diff != "" {
		t.Errorf("New() line ops (-got +want):\n%s", diff)
	}
	if b.Line() != Line(r) {
		t.Error("Line() did not return the line")
	}
	if s := b.String(); s != "bitbang" {
		t.Errorf("String() = %q", s)
	}
	if err := b.Halt(); err != nil {
		t.Fatal(err)
	}
}

func TestNew_fail_opts(t *testing.T) {
	for _, tc := range []struct {
		name string
		mod  func(o *Opts)
	}{
		{"ResetLow", func(o *Opts) { o.ResetLow = 400 * time.Microsecond }},
		{"PresenceDetect", func(o *Opts) { o.PresenceDetect = 90 * time.Microsecond }},
		{"ShortLow", func(o *Opts) { o.ShortLow = 0 }},
		{"ReadSample", func(o *Opts) { o.ReadSample = o.ShortLow }},
		{"Write0Low", func(o *Opts) { o.Write0Low = 20 * time.Microsecond }},
		{"Slot", func(o *Opts) { o.Slot = o.Write0Low }},
		{"ShortLow_sub_µs", func(o *Opts) { o.ShortLow = 900 * time.Nanosecond }},
		{"ReadSample_sub_µs", func(o *Opts) { o.ReadSample = o.ShortLow + 500*time.Nanosecond }},
		{"Slot_sub_µs", func(o *Opts) { o.Slot = o.Write0Low + 500*time.Nanosecond }},
		{"ResetLow_sub_µs", func(o *Opts) { o.ResetLow = 480*time.Microsecond - time.Nanosecond }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOpts
			tc.mod(&opts)
			r := &recorder{}
			if b, err := New(r, r, &opts); b != nil || err == nil {
				t.Fatal("expected invalid options to fail")
			}
			if len(r.ops) != 0 {
				t.Fatalf("line touched: %v", r.ops)
			}
		})
	}
}

func TestNew_fail_line(t *testing.T) {
	sim := &bitbangtest.Bus{Err: errors.New("gpio broken")}
	if _, err := New(sim, sim, nil); err == nil {
		t.Fatal("expected line error")
	}
}

func TestReset(t *testing.T) {
	b, r := newRecorded(t, true, false)
	present, err := b.Reset()
	if err != nil {
		t.Fatal(err)
	}
	if !present {
		t.Error("expected presence")
	}
	want := []string{"sample", "low", "wait 480", "release", "wait 70", "sample", "wait 410"}
	if diff := cmp.Diff(r.ops, want); diff != "" {
		t.Errorf("Reset() line ops (-got +want):\n%s", diff)
	}
}

func TestReset_no_presence(t *testing.T) {
	b, _ := newRecorded(t, true, true)
	present, err := b.Reset()
	if err != nil {
		t.Fatal(err)
	}
	if present {
		t.Error("unexpected presence")
	}
}

func TestReset_idle_wait(t *testing.T) {
	b, r := newRecorded(t, false, false, true, false)
	if _, err := b.Reset(); err != nil {
		t.Fatal(err)
	}
	want := []string{"sample", "wait 2", "sample", "wait 2", "sample", "low"}
	if diff := cmp.Diff(r.ops[:len(want)], want); diff != "" {
		t.Errorf("Reset() line ops (-got +want):\n%s", diff)
	}
}

func TestReset_bus_not_high(t *testing.T) {
	sim := &bitbangtest.Bus{StuckLow: true}
	b, err := New(sim, sim, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Reset(); !errors.Is(err, ErrBusNotHigh) {
		t.Fatalf("expected ErrBusNotHigh, got %v", err)
	}
	if sim.DriveLows != 0 || sim.Releases != 1 {
		t.Errorf("line touched: %d drive low, %d release", sim.DriveLows, sim.Releases)
	}
	if len(sim.Delays) != 125 || sim.Now != 250 {
		t.Errorf("expected 125 polls over 250µs, got %d over %dµs", len(sim.Delays), sim.Now)
	}
	if s, ok := err.(interface{ IsShorted() bool }); !ok || !s.IsShorted() {
		t.Error("expected a shorted bus error")
	}
}

func TestReadBit(t *testing.T) {
	b, r := newRecorded(t, false)
	v, err := b.ReadBit()
	if err != nil {
		t.Fatal(err)
	}
	if v {
		t.Error("expected 0")
	}
	want := []string{"low", "wait 6", "release", "wait 9", "sample", "wait 55"}
	if diff := cmp.Diff(r.ops, want); diff != "" {
		t.Errorf("ReadBit() line ops (-got +want):\n%s", diff)
	}
}

func TestWriteBit(t *testing.T) {
	b, r := newRecorded(t)
	if err := b.WriteBit(true); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteBit(false); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"low", "wait 6", "release", "wait 64",
		"low", "wait 60", "release", "wait 10",
	}
	if diff := cmp.Diff(r.ops, want); diff != "" {
		t.Errorf("WriteBit() line ops (-got +want):\n%s", diff)
	}
}

func TestOpts(t *testing.T) {
	opts := Opts{
		ResetLow:       500 * time.Microsecond,
		PresenceDetect: 65 * time.Microsecond,
		Slot:           90 * time.Microsecond,
		ShortLow:       5 * time.Microsecond,
		Write0Low:      75 * time.Microsecond,
		ReadSample:     13 * time.Microsecond,
	}
	r := &recorder{levels: []bool{true, false, true}}
	b, err := New(r, r, &opts)
	if err != nil {
		t.Fatal(err)
	}
	r.ops = nil
	if _, err := b.Reset(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.ReadBit(); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteBit(false); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"sample", "low", "wait 500", "release", "wait 65", "sample", "wait 435",
		"low", "wait 5", "release", "wait 8", "sample", "wait 77",
		"low", "wait 75", "release", "wait 15",
	}
	if diff := cmp.Diff(r.ops, want); diff != "" {
		t.Errorf("line ops (-got +want):\n%s", diff)
	}
}

func TestReadByte(t *testing.T) {
	// 0xA5, LSB first.
	b, r := newRecorded(t, true, false, true, false, false, true, false, true)
	v, err := b.ReadByte()
	if err != nil {
		t.Fatal(err)
	}
	if v != 0xA5 {
		t.Errorf("ReadByte() = %#x", v)
	}
	if n := strings.Count(strings.Join(r.ops, ","), "sample"); n != 8 {
		t.Errorf("expected 8 read slots, got %d", n)
	}
}

func TestReadBytes(t *testing.T) {
	b, _ := newRecorded(t,
		false, false, false, false, false, false, false, false,
		true, true, true, true, false, false, false, false)
	var p [2]byte
	if err := b.ReadBytes(p[:]); err != nil {
		t.Fatal(err)
	}
	if p != [2]byte{0x00, 0x0F} {
		t.Errorf("ReadBytes() = %#v", p)
	}
}

func TestWriteBytes(t *testing.T) {
	b, r := newRecorded(t)
	w := []byte{0x01, 0x80, 0x5A}
	if err := b.WriteBytes(w); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(written(t, r.ops), w); diff != "" {
		t.Errorf("WriteBytes() (-got +want):\n%s", diff)
	}
}

func TestLineError(t *testing.T) {
	injected := errors.New("pin gone")
	b, r := newRecorded(t)
	r.err = injected
	_, err := b.Reset()
	var le *LineError
	if !errors.As(err, &le) || le.Op != "drive low" {
		t.Fatalf("expected a drive low LineError, got %v", err)
	}
	if !errors.Is(err, injected) {
		t.Errorf("%v does not wrap the line error", err)
	}
	if err.Error() != "bitbang: drive low: pin gone" {
		t.Errorf("Error() = %q", err)
	}
	if err := b.WriteBit(true); !errors.Is(err, injected) {
		t.Errorf("WriteBit() = %v", err)
	}
	if _, err := b.ReadBit(); !errors.Is(err, injected) {
		t.Errorf("ReadBit() = %v", err)
	}
}

func TestLineError_sense(t *testing.T) {
	sim := bitbangtest.New(bitbangtest.MakeAddress(0x28, 1))
	b, err := New(sim, sim, nil)
	if err != nil {
		t.Fatal(err)
	}
	injected := errors.New("read failed")
	sim.Err = injected
	if _, err := b.Reset(); !errors.Is(err, injected) {
		t.Fatalf("Reset() = %v", err)
	}
	if _, _, err := b.DeviceSearch(nil, false); !errors.Is(err, injected) {
		t.Fatalf("DeviceSearch() = %v", err)
	}
}

func TestAddress(t *testing.T) {
	var a onewire.Address = 0x740000070e41ac28
	if f := Family(a); f != 0x28 {
		t.Errorf("Family() = %#x", f)
	}
	if s := FormatAddress(a); s != "740000070E41AC28" {
		t.Errorf("FormatAddress() = %q", s)
	}
	if b := addressBytes(a); b != [8]byte{0x28, 0xac, 0x41, 0x0e, 0x07, 0x00, 0x00, 0x74} {
		t.Errorf("addressBytes() = %#v", b)
	}
}

func TestErrors(t *testing.T) {
	for _, err := range []error{ErrBusNotHigh, ErrUnexpectedResponse, ErrCRCMismatch, ErrNoDevice, ErrFamilyCodeMismatch, ErrTimeout} {
		if b, ok := err.(interface{ BusError() bool }); !ok || !b.BusError() {
			t.Errorf("%v is not a bus error", err)
		}
		if !strings.HasPrefix(err.Error(), "bitbang: ") {
			t.Errorf("%q lacks the package prefix", err)
		}
	}
	if n, ok := ErrNoDevice.(interface{ NoDevices() bool }); !ok || !n.NoDevices() {
		t.Error("ErrNoDevice does not report NoDevices")
	}
}

func TestDelayFunc(t *testing.T) {
	var got []uint16
	d := DelayFunc(func(us uint16) { got = append(got, us) })
	d.DelayMicros(3)
	d.DelayMicros(480)
	if diff := cmp.Diff(got, []uint16{3, 480}); diff != "" {
		t.Errorf("DelayFunc (-got +want):\n%s", diff)
	}
}

func TestSpinDelay(t *testing.T) {
	start := time.Now()
	SpinDelay.DelayMicros(200)
	if e := time.Since(start); e < 200*time.Microsecond {
		t.Errorf("SpinDelay returned after %s", e)
	}
}
