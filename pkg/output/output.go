package output

import "github.com/ericogr/adclogger/pkg/adc"

// Output receives every reading after it has been persisted.
type Output interface {
	Publish([]adc.Reading) error
	Close() error
}

// helper constructors are in subpackages
