package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ericogr/adclogger/pkg/adc"
	"github.com/ericogr/adclogger/pkg/output"
)

type ConsoleOutput struct {
	w io.Writer
}

// NewConsole prints readings to w, or stdout when w is nil.
func NewConsole(w io.Writer) output.Output {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleOutput{w: w}
}

func (c *ConsoleOutput) Publish(readings []adc.Reading) error {
	for _, r := range readings {
		if _, err := fmt.Fprintf(c.w, "%s channel=%s index=%d raw=%d value=%.6f%s\n",
			r.Timestamp.Format(time.RFC3339), channelName(r), r.Index, r.Raw, r.Value, r.Unit); err != nil {
			return err
		}
	}
	return nil
}

func channelName(r adc.Reading) string {
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("%d", r.Channel)
}

func (c *ConsoleOutput) Close() error { return nil }
