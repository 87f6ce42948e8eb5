// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// owscan lists the devices on a 1-Wire bus bit-banged on a GPIO pin.
package main

import (
	"errors"
	"flag"
	"fmt"
	"image/color"
	"io"
	"log"
	"os"
	"time"

	"github.com/GermanBionicSystems/onewire/bitbang"
	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/host/v3"
)

// families lists the common family codes.
var families = map[byte]string{
	0x01: "DS2401",
	0x10: "DS18S20",
	0x22: "DS1822",
	0x26: "DS2438",
	0x28: "DS18B20",
	0x29: "DS2408",
	0x3a: "DS2413",
	0x3b: "MAX31850",
	0x42: "DS28EA00",
}

// swatch returns a colour block identifying the family code.
func swatch(f byte) string {
	return ansi256.Default.Block(color.NRGBA{R: f & 0xe0, G: f << 3 & 0xe0, B: f << 6, A: 255})
}

func printDevice(w io.Writer, a onewire.Address, useColor bool) {
	f := bitbang.Family(a)
	name, ok := families[f]
	if !ok {
		name = "unknown"
	}
	s := ""
	if useColor {
		s = swatch(f) + "\033[0m "
	}
	fmt.Fprintf(w, "%s%s  family 0x%02x %s\n", s, bitbang.FormatAddress(a), f, name)
}

func mainImpl() error {
	pin := flag.String("p", "GPIO4", "GPIO pin of the 1-Wire data line")
	alarm := flag.Bool("alarm", false, "only list devices in alarm state")
	single := flag.Bool("single", false, "read the address of the only device on the bus instead of searching")
	repeat := flag.Int("n", 1, "number of scans")
	interval := flag.Duration("i", time.Second, "interval between scans")
	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()
	if !*verbose {
		log.SetOutput(io.Discard)
	}
	log.SetFlags(log.Lmicroseconds)
	if flag.NArg() != 0 {
		return errors.New("unexpected argument, try -help")
	}

	if _, err := host.Init(); err != nil {
		return err
	}
	p := gpioreg.ByName(*pin)
	if p == nil {
		return fmt.Errorf("invalid pin %q", *pin)
	}
	log.Printf("using %s", p)
	b, err := bitbang.New(bitbang.NewPinLine(p), bitbang.SpinDelay, nil)
	if err != nil {
		return err
	}
	defer b.Halt()

	useColor := isatty.IsTerminal(os.Stdout.Fd())
	w := colorable.NewColorableStdout()
	if !useColor {
		w = colorable.NewNonColorable(os.Stdout)
	}

	for i := 0; i < *repeat; i++ {
		if i != 0 {
			time.Sleep(*interval)
		}
		if *single {
			a, err := b.ReadAddress()
			if err != nil {
				return err
			}
			printDevice(w, a, useColor)
			continue
		}
		start := time.Now()
		n := 0
		for a, err := range b.Devices(*alarm).All() {
			if err != nil {
				return fmt.Errorf("scan %d: %w", i+1, err)
			}
			printDevice(w, a, useColor)
			n++
		}
		log.Printf("scan %d: %d device(s) in %s", i+1, n, time.Since(start))
	}
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "owscan: %s.\n", err)
		os.Exit(1)
	}
}
