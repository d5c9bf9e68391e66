// Package plan derives ordered breakpoint plans from an original image width.
//
// A plan walks the standard 128px grid up to 1024px. For wider originals it
// inserts intermediate breakpoints at quarter fractions of the remaining
// range, collapsing to a single midpoint when the quarters would
// land within 128px of each other. The original width always closes the plan
// and is the canonical entry other components rewrite toward.
package plan

import (
	"fmt"
	"math"
	"strconv"
)

// Kind classifies a plan entry.
type Kind string

const (
	KindIncrement    Kind = "increment"    // multiple of the 128px grid
	KindIntermediate Kind = "intermediate" // quarter-fraction above 1024px
	KindOriginal     Kind = "original"     // the source width, always last
)

const (
	gridStep = 128
	gridTop  = 1024

	// BucketOriginal is the bucket label of the canonical entry.
	BucketOriginal = "original"
)

// Entry is one breakpoint in a plan.
type Entry struct {
	Width  int    // target pixel width, positive
	Bucket string // directory bucket label
	Kind   Kind
}

// Plan is an ordered breakpoint sequence: non-decreasing by width, widths
// unique except that the trailing original entry may repeat a prior width.
type Plan []Entry

// Original returns the canonical original-kind entry.
func (p Plan) Original() Entry {
	return p[len(p)-1]
}

// Variants returns all non-original entries in ascending width order.
func (p Plan) Variants() []Entry {
	return p[:len(p)-1]
}

// Compute derives the breakpoint plan for an image of the given width.
// The asset name is used only for diagnostics.
func Compute(asset string, originalWidth int) (Plan, error) {
	if originalWidth <= 0 {
		return nil, fmt.Errorf("asset %s: original width must be positive, got %d", asset, originalWidth)
	}

	var p Plan
	for w := gridStep; w <= gridTop && w <= originalWidth; w += gridStep {
		p = append(p, Entry{Width: w, Bucket: strconv.Itoa(w), Kind: KindIncrement})
	}

	if originalWidth > gridTop {
		diff := float64(originalWidth - gridTop)
		quarter := int(math.Round(diff * 0.25))
		if quarter >= gridStep {
			p = append(p,
				Entry{Width: gridTop + quarter, Bucket: "25", Kind: KindIntermediate},
				Entry{Width: gridTop + int(math.Round(diff*0.5)), Bucket: "50", Kind: KindIntermediate},
				Entry{Width: gridTop + int(math.Round(diff*0.75)), Bucket: "75", Kind: KindIntermediate},
			)
		} else {
			// Quarters would crowd the grid top; a single midpoint avoids
			// near-duplicate variants for slightly-oversized originals.
			p = append(p, Entry{Width: gridTop + int(math.Round(diff*0.5)), Bucket: "50", Kind: KindIntermediate})
		}
	}

	p = append(p, Entry{Width: originalWidth, Bucket: BucketOriginal, Kind: KindOriginal})
	return p, nil
}
