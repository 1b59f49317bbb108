// envctl plays the environment side of the bridge for manual testing: it
// sends control bytes and telemetry poses to a running simbridge and
// prints the status signals simbridge sends back.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/banshee-data/simbridge/internal/bridge"
	"github.com/banshee-data/simbridge/internal/version"
	"github.com/banshee-data/simbridge/internal/wire"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	controlAddr   string
	telemetryAddr string
	statusAddr    string
	toTelemetry   bool
	count         int
	timeout       time.Duration
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	var opts options
	flagSet := pflag.NewFlagSet("envctl", pflag.ContinueOnError)
	flagSet.SetOutput(stdout)
	flagSet.StringVar(&opts.controlAddr, "control-addr", bridge.DefaultControlAddr, "simbridge control address")
	flagSet.StringVar(&opts.telemetryAddr, "telemetry-addr", bridge.DefaultTelemetryAddr, "simbridge telemetry address")
	flagSet.StringVar(&opts.statusAddr, "status-addr", bridge.DefaultStatusAddr, "address to receive status signals on (listen)")
	flagSet.BoolVar(&opts.toTelemetry, "telemetry", false, "send raw bytes to the telemetry port instead of control (raw)")
	flagSet.IntVarP(&opts.count, "count", "n", 0, "exit after this many status signals, 0 for no limit (listen)")
	flagSet.DurationVar(&opts.timeout, "timeout", 0, "exit after this long, 0 for no limit (listen)")
	showVersion := flagSet.Bool("version", false, "print version and exit")
	flagSet.BoolP("help", "h", false, "show help")
	flagSet.SetInterspersed(false)

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stdout, flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(stdout, flagSet)
		return nil
	}
	if *showVersion {
		fmt.Fprintln(stdout, version.String("envctl"))
		return nil
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(stdout, flagSet)
		return errors.New("missing command")
	}

	// Flags may also follow the command, except for pose whose negative
	// values would parse as shorthand flags.
	command, rest := rest[0], rest[1:]
	if command != "pose" {
		flagSet.SetInterspersed(true)
		if err := flagSet.Parse(rest); err != nil {
			return err
		}
		rest = flagSet.Args()
	}

	switch command {
	case "start":
		return sendControl(opts.controlAddr, wire.StartEnvironment, rest, stdout)
	case "stop":
		return sendControl(opts.controlAddr, wire.StopEnvironment, rest, stdout)
	case "pose":
		return sendPose(opts.telemetryAddr, rest, stdout)
	case "raw":
		return sendRaw(opts, rest, stdout)
	case "listen":
		return listenStatus(ctx, opts, rest, stdout)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `envctl drives a simbridge as the environment process would.

Usage: envctl [flags] <command> [args]

Commands:
  start                          send StartEnvironment (0x01) to the control port
  stop                           send StopEnvironment (0x02) to the control port
  pose LAT LON ALT ROLL PITCH YAW  send one telemetry pose
  raw HEX                        send arbitrary bytes (control port, or --telemetry)
  listen                         print status signals received on --status-addr

Flags:
%s`, flagSet.FlagUsages())
}

func send(address string, payload []byte) error {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", address, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", address, err)
	}
	defer conn.Close()
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("failed to send to %s: %w", address, err)
	}
	return nil
}

func sendControl(address string, sig wire.ControlSignal, args []string, stdout io.Writer) error {
	if len(args) != 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}
	b := wire.EncodeControl(sig)
	if err := send(address, b[:]); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "sent %s to %s\n", sig, address)
	return nil
}

func sendPose(address string, args []string, stdout io.Writer) error {
	if len(args) != 6 {
		return fmt.Errorf("pose needs 6 values (LAT LON ALT ROLL PITCH YAW), got %d", len(args))
	}
	var v [6]float32
	for i, s := range args {
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return fmt.Errorf("invalid pose value %q: %w", s, err)
		}
		v[i] = float32(f)
	}
	pose := wire.TelemetryPose{
		Latitude: v[0], Longitude: v[1], Altitude: v[2],
		Roll: v[3], Pitch: v[4], Yaw: v[5],
	}
	if err := send(address, wire.EncodePose(pose)); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "sent pose %+v to %s\n", pose, address)
	return nil
}

func sendRaw(opts options, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return errors.New("raw needs exactly one HEX argument")
	}
	payload, err := hex.DecodeString(strings.TrimPrefix(args[0], "0x"))
	if err != nil {
		return fmt.Errorf("invalid hex %q: %w", args[0], err)
	}
	address := opts.controlAddr
	if opts.toTelemetry {
		address = opts.telemetryAddr
	}
	if err := send(address, payload); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "sent %d bytes to %s\n", len(payload), address)
	return nil
}

func listenStatus(ctx context.Context, opts options, args []string, stdout io.Writer) error {
	if len(args) != 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}
	addr, err := net.ResolveUDPAddr("udp", opts.statusAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", opts.statusAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", opts.statusAddr, err)
	}
	defer conn.Close()

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}
	// Unblock ReadFromUDP when ctx ends.
	go func() {
		<-ctx.Done()
		conn.SetReadDeadline(time.Now())
	}()

	fmt.Fprintf(stdout, "listening on %s\n", conn.LocalAddr())
	buf := make([]byte, 64)
	received := 0
	for opts.count == 0 || received < opts.count {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive failed: %w", err)
		}
		received++
		sig, ok := wire.StatusSignal(0), false
		if n == 1 {
			sig, ok = wire.DecodeStatusByte(buf[0])
		}
		if !ok {
			fmt.Fprintf(stdout, "%s unrecognised status % x\n", from, buf[:n])
			continue
		}
		fmt.Fprintf(stdout, "%s %s\n", from, sig)
	}
	return nil
}
