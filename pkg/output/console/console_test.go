package console

import (
	"bytes"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ericogr/adclogger/pkg/adc"
)

func captureStdout(f func()) string {
	r, w, _ := os.Pipe()
	stdout := os.Stdout
	os.Stdout = w
	outC := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		outC <- buf.String()
	}()
	f()
	_ = w.Close()
	os.Stdout = stdout
	return <-outC
}

func TestConsolePublish(t *testing.T) {
	ts := time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)
	readings := []adc.Reading{{Channel: 6, Name: "thermistor", Index: 2, Raw: 2048, Value: 24.987654, Unit: "°C", Timestamp: ts}}
	out := captureStdout(func() { _ = NewConsole(nil).Publish(readings) })
	want := "2025-09-19T14:41:54Z channel=thermistor index=2 raw=2048 value=24.987654°C\n"
	assert.Equal(t, want, out)
}

func TestConsolePublishUnnamedChannel(t *testing.T) {
	var buf bytes.Buffer
	ts := time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)
	err := NewConsole(&buf).Publish([]adc.Reading{{Channel: 3, Raw: 123, Value: 123, Timestamp: ts}})
	assert.NoError(t, err)
	assert.Equal(t, "2025-09-19T14:41:54Z channel=3 index=0 raw=123 value=123.000000\n", buf.String())
}
