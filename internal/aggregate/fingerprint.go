package aggregate

import (
	"fmt"
	"strconv"

	"github.com/mitchellh/hashstructure/v2"

	"github.com/aristath/reportagg/internal/reporting"
)

// The fingerprint covers which slots exist and whether they are enabled,
// not the content of the reports. Content freshness is checked separately
// through modification times.
type fingerprintInput struct {
	Title     string
	Producers []producerShape
}

type producerShape struct {
	TaskID string
	Slots  []slotShape
}

type slotShape struct {
	Name    string
	Enabled bool
}

// Fingerprint summarizes the shape of the aggregable input: producer
// identities in discovery order, their slots in registration order and each
// slot's enabled flag.
func Fingerprint(title string, producers []reporting.Producer) (string, error) {
	input := fingerprintInput{Title: title, Producers: make([]producerShape, 0, len(producers))}
	for _, p := range producers {
		shape := producerShape{TaskID: p.TaskID, Slots: make([]slotShape, 0, len(p.Slots))}
		for _, s := range p.Slots {
			shape.Slots = append(shape.Slots, slotShape{Name: s.Name, Enabled: s.IsEnabled()})
		}
		input.Producers = append(input.Producers, shape)
	}

	h, err := hashstructure.Hash(input, hashstructure.FormatV2, nil)
	if err != nil {
		return "", fmt.Errorf("hashing report shape: %w", err)
	}
	return strconv.FormatUint(h, 16), nil
}
