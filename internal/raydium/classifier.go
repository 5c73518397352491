package raydium

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Outcome is the classifier verdict for one transaction.
type Outcome int

const (
	OutcomeUnrelated Outcome = iota
	OutcomeNewPool
	OutcomeMalformed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNewPool:
		return "new_pool"
	case OutcomeMalformed:
		return "malformed"
	default:
		return "unrelated"
	}
}

// Classification is the result of Classify. Event is set only for
// OutcomeNewPool; Err is set for every other outcome.
type Classification struct {
	Outcome Outcome
	Event   PoolEvent
	Err     error
}

// Classifier runs the variant decoders in fixed priority order: V4, then CPMM.
type Classifier struct {
	log logrus.FieldLogger
}

// NewClassifier creates a classifier. A nil logger discards output.
func NewClassifier(log logrus.FieldLogger) *Classifier {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Classifier{log: log}
}

// Classify never panics; a panic inside a decoder is reported as malformed.
func (c *Classifier) Classify(tx Transaction) (res Classification) {
	defer func() {
		if r := recover(); r != nil {
			res = Classification{
				Outcome: OutcomeMalformed,
				Err:     newDecodeError(KindTruncated, 0, "decoder panic: %v", r),
			}
		}
	}()

	v4Event, v4Err := c.firstV4(tx)
	cpmmEvent, cpmmErr := DecodeCPMM(tx.Logs)

	switch {
	case v4Err == nil && cpmmErr == nil:
		c.log.WithFields(logrus.Fields{
			"signature": tx.Signature,
			"v4_pool":   v4Event.PoolAddress.String(),
			"cpmm_pool": cpmmEvent.PoolAddress.String(),
		}).Warn("⚠️ Transaction matches both V4 and CPMM pool-init, using V4")
		return c.newPool(tx, v4Event)
	case v4Err == nil:
		return c.newPool(tx, v4Event)
	case cpmmErr == nil:
		return c.newPool(tx, cpmmEvent)
	}

	// Prefer a real decode failure over NotApplicable so malformed input is visible.
	for _, err := range []error{v4Err, cpmmErr} {
		if !IsNotApplicable(err) {
			return Classification{Outcome: OutcomeMalformed, Err: err}
		}
	}
	return Classification{Outcome: OutcomeUnrelated, Err: v4Err}
}

func (c *Classifier) firstV4(tx Transaction) (PoolEvent, error) {
	var firstErr error
	for i, ix := range tx.Instructions {
		if !ix.ProgramID.Equals(AmmV4ProgramID) {
			continue
		}
		ev, err := DecodeV4(ix)
		if err == nil {
			return ev, nil
		}
		if !IsNotApplicable(err) && firstErr == nil {
			firstErr = fmt.Errorf("instruction %d: %w", i, err)
		}
	}
	if firstErr != nil {
		return PoolEvent{}, firstErr
	}
	return PoolEvent{}, newDecodeError(KindNotApplicable, VariantV4, "no amm v4 initialize2 instruction")
}

func (c *Classifier) newPool(tx Transaction, ev PoolEvent) Classification {
	ev.Raw.Signature = tx.Signature
	ev.Raw.Slot = tx.Slot
	return Classification{Outcome: OutcomeNewPool, Event: ev}
}
