// Command sstflash programs an SST39SF0x0-family NOR flash chip mapped
// into the host's legacy 1 MiB segment:offset window. See spec.md §6 for
// the CLI contract.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"openenterprise/sstflash"
	"openenterprise/sstflash/device"
	"openenterprise/sstflash/flasher"
	"openenterprise/sstflash/notify"
	"openenterprise/sstflash/romimage"
	"openenterprise/sstflash/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	fs := flag.NewFlagSet("sstflash", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(stderr) }

	var help bool
	fs.BoolVar(&help, "h", false, "print usage")
	fs.BoolVar(&help, "help", false, "print usage")
	fs.BoolVar(&help, "?", false, "print usage")
	size := fs.Int("size", 0, "override written length, in KiB (even, 2-256)")
	mqttAddr := fs.String("mqtt", "", "publish progress to this MQTT broker (host:port)")
	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if help {
		printUsage(stderr)
		return 1
	}
	if *showVersion {
		fmt.Fprintln(stdout, version.String())
		return 0
	}

	if fs.NArg() < 2 {
		fmt.Fprintln(stderr, "sstflash: missing segment or image path")
		printUsage(stderr)
		return 1
	}

	segment, err := parseSegment(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "sstflash: %v\n", err)
		return 1
	}

	f, err := os.Open(fs.Arg(1))
	if err != nil {
		fmt.Fprintf(stderr, "sstflash: %v\n", err)
		return 1
	}
	defer f.Close()

	image, err := romimage.Load(f, *size)
	if err != nil {
		fmt.Fprintf(stderr, "sstflash: %v\n", err)
		return 1
	}

	space, closeSpace, err := openHardwareSpace()
	if err != nil {
		fmt.Fprintf(stderr, "sstflash: %v\n", err)
		return 1
	}
	defer closeSpace()

	var notifier *notify.Publisher
	if *mqttAddr != "" {
		notifier, err = notify.Dial(*mqttAddr, logger)
		if err != nil {
			fmt.Fprintf(stderr, "sstflash: mqtt: %v\n", err)
			return 1
		}
		defer notifier.Close()
	}

	hw := sstflash.Hardware{
		Space:   space,
		Tick:    newBIOSTick(space),
		Crit:    &osThreadCritical{},
		Confirm: rawConfirm,
	}

	progress := func(e flasher.Event) {
		fmt.Fprintf(stdout, "\r%s block %d/%d", e.Phase, e.BlockIndex+1, e.TotalBlocks)
		if notifier != nil {
			notifier.Publish(notify.FormatEvent(string(e.Phase), e.BlockIndex, e.TotalBlocks))
		}
	}

	fmt.Fprintf(stdout, "programming %d bytes (%d blocks) at segment 0x%04X\n",
		image.ProgrammedSize(), len(image.Blocks), segment)

	report, err := sstflash.Run(context.Background(), sstflash.Options{Dest: segment, SizeOverrideKiB: *size}, hw, image, progress, logger)
	fmt.Fprintln(stdout)

	switch {
	case errors.Is(err, sstflash.ErrUserAborted):
		fmt.Fprintln(stdout, "aborted")
		return 1
	case errors.Is(err, device.ErrDeviceNotRecognized):
		fmt.Fprintf(stderr, "%v, aborting\n", err)
		return 1
	case err != nil:
		fmt.Fprintln(stdout, "error, device may be corrupt, reboot")
		sstflash.Halt()
		return 1
	}

	switch report.Outcome {
	case sstflash.OutcomeAlreadyUpToDate:
		fmt.Fprintln(stdout, "already up to date")
		return 0
	case sstflash.OutcomeFlashed:
		fmt.Fprintln(stdout, "complete, reboot")
		sstflash.Halt()
	}
	return 0
}

// parseSegment validates a 1-4 hex digit segment string against spec.md
// §6: range [0xA000, 0xF800], a multiple of 0x100.
func parseSegment(s string) (uint16, error) {
	if len(s) == 0 || len(s) > 4 {
		return 0, fmt.Errorf("segment must be 1-4 hex digits, got %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("segment %q is not valid hex", s)
	}
	seg := uint16(v)
	if seg < 0xA000 || seg > 0xF800 || seg%0x100 != 0 {
		return 0, fmt.Errorf("segment 0x%04X must be in [0xA000, 0xF800] and a multiple of 0x100", seg)
	}
	return seg, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: sstflash [options] <segment-hex> <image-path>")
	fmt.Fprintln(w, "  -size K      override written length, in KiB (even, 2-256)")
	fmt.Fprintln(w, "  -mqtt addr   publish progress to an MQTT broker at host:port")
	fmt.Fprintln(w, "  -version     print version and exit")
	fmt.Fprintln(w, "  -h, -help, -?  print this message")
}

// rawConfirm implements the "Continue Y/N?" prompt from spec.md §4.7 as a
// single un-echoed keystroke read, following the teacher's cmd/cli/main.go
// use of golang.org/x/term for interactive input (there, masked password
// entry via term.ReadPassword; here, raw single-byte reads via
// term.MakeRaw/term.Restore since a Y/N answer isn't a line of sensitive
// text).
var rawConfirm = defaultRawConfirm
