package main

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"github.com/gitsim/emulator/logging"
	"github.com/gitsim/emulator/protocol"
	"github.com/gitsim/emulator/serial"
)

func TestVersion(t *testing.T) {
	err := mainWithArgs(context.Background(), []string{"main", "-version"}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
}

func TestBadConfig(t *testing.T) {
	err := mainWithArgs(context.Background(),
		[]string{"main", "-config", filepath.Join(t.TempDir(), "missing.json")}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRunOverFakeSerial(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	prevOpen := serial.Open
	defer func() {
		serial.Open = prevOpen
	}()
	serial.Open = func(devicePath string, options serial.Options) (io.ReadWriteCloser, error) {
		test.That(t, devicePath, test.ShouldEqual, "/dev/ttyTEST0")
		test.That(t, options.BaudRate, test.ShouldEqual, 9600)
		return server, nil
	}

	cfgPath := filepath.Join(t.TempDir(), "emulator.json")
	test.That(t, os.WriteFile(cfgPath, []byte(`{
		"serial": {"path": "/dev/ttyTEST0", "baud_rate": 9600},
		"tick": {"period": "1ms"},
		"slow_period": "10ms"
	}`), 0o600), test.ShouldBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- mainWithArgs(ctx, []string{"main", "-config", cfgPath, "-fake", "-debug"}, logging.NewTestLogger(t))
	}()

	conn := protocol.ConnectionTelegram{WheelDiameter: 1.0, PPR: [2]uint16{100, 100}}.Encode()
	_, err := client.Write(conn[:])
	test.That(t, err, test.ShouldBeNil)

	buf := make([]byte, protocol.ResponseSize)
	_, err = io.ReadFull(client, buf)
	test.That(t, err, test.ShouldBeNil)
	resp, _, err := protocol.DecodeResponse(buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp.Velocities, test.ShouldResemble, [2]float32{0, 0})

	cancel()
	test.That(t, <-done, test.ShouldBeNil)
}
