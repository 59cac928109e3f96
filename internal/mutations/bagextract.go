package mutations

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/JonMunkholm/gobimport/internal/core"
)

// Read config keys set for the reader of a BAG extract import.
const (
	ReadConfigDownloadLocation         = "download_location"
	ReadConfigLastFullDownloadLocation = "last_full_download_location"
)

// fullDay is the day of the month on which a full extract is published.
const fullDay = 15

const dateLayout = "02012006"

var (
	gemeenteFullFile = regexp.MustCompile(`^BAGGEM(\d{4})L-(\d{8})\.zip$`)
	nationalFullFile = regexp.MustCompile(`^BAGNLDL-(\d{8})\.zip$`)
	mutationsFile    = regexp.MustCompile(`^BAGNLDM-(\d{8})-(\d{8})\.zip$`)
)

// BagExtractHandler sequences imports of the BAG extract: a full extract of
// the municipality on the 15th of each month and daily national mutation
// files in between.
type BagExtractHandler struct {
	baseURL  string
	gemeente string
	lister   Lister
	now      func() time.Time
}

// NewBagExtractHandler creates the handler. An empty gemeente selects the
// national full extract.
func NewBagExtractHandler(opts Options) *BagExtractHandler {
	h := &BagExtractHandler{
		baseURL:  strings.TrimSuffix(opts.BaseURL, "/"),
		gemeente: opts.Gemeente,
		lister:   opts.Lister,
		now:      opts.Now,
	}
	if h.lister == nil {
		h.lister = NewHTTPLister(nil)
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// step is one position in the extract sequence.
type step struct {
	mode Mode
	date time.Time
	// prev is the date the mutations file starts from.
	prev time.Time
}

func (h *BagExtractHandler) HandleImport(ctx context.Context, last *MutationImport, ds *core.Dataset) (Decision, error) {
	next, err := h.nextStep(last)
	if err != nil {
		return Decision{}, err
	}

	dir, filename := h.location(next)
	available, err := h.lister.List(ctx, dir)
	if err != nil {
		return Decision{}, fmt.Errorf("list %s: %w", dir, err)
	}
	if !slices.Contains(available, filename) {
		return Decision{}, fmt.Errorf("%w: %s", ErrNotYetAvailable, filename)
	}

	readConfig := map[string]any{
		ReadConfigDownloadLocation: dir + filename,
	}
	if next.mode == ModeMutations {
		fullDir, fullFile := h.location(step{mode: ModeFull, date: lastFullDate(next.prev)})
		readConfig[ReadConfigLastFullDownloadLocation] = fullDir + fullFile
	}

	return Decision{
		Import: MutationImport{
			Catalogue:   ds.Catalogue,
			Collection:  ds.Entity,
			Application: ds.Source.Application,
			Filename:    filename,
			Mode:        next.mode,
		},
		ReadConfig: readConfig,
	}, nil
}

func (h *BagExtractHandler) nextStep(last *MutationImport) (step, error) {
	if last == nil {
		return step{mode: ModeFull, date: lastFullDate(h.today())}, nil
	}

	current, err := parseFilename(last.Filename)
	if err != nil {
		return step{}, err
	}
	if !last.Ended() {
		// Restart the unfinished import.
		return current, nil
	}

	date := current.date.AddDate(0, 0, 1)
	if date.Day() == fullDay {
		return step{mode: ModeFull, date: date}, nil
	}
	return step{mode: ModeMutations, date: date, prev: current.date}, nil
}

func (h *BagExtractHandler) today() time.Time {
	y, m, d := h.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// location returns the listing directory URL and the filename of a step.
func (h *BagExtractHandler) location(s step) (string, string) {
	switch {
	case s.mode == ModeMutations:
		return h.dir("Nederland dagmutaties"),
			fmt.Sprintf("BAGNLDM-%s-%s.zip", s.prev.Format(dateLayout), s.date.Format(dateLayout))
	case h.gemeente != "":
		return h.dir("Gemeente LVC", h.gemeente),
			fmt.Sprintf("BAGGEM%sL-%s.zip", h.gemeente, s.date.Format(dateLayout))
	default:
		return h.dir("Nederland LVC"),
			fmt.Sprintf("BAGNLDL-%s.zip", s.date.Format(dateLayout))
	}
}

func (h *BagExtractHandler) dir(segments ...string) string {
	var b strings.Builder
	b.WriteString(h.baseURL)
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	b.WriteByte('/')
	return b.String()
}

// lastFullDate returns the most recent full extract date on or before d.
func lastFullDate(d time.Time) time.Time {
	y, m, day := d.Date()
	if day < fullDay {
		m--
	}
	return time.Date(y, m, fullDay, 0, 0, 0, 0, time.UTC)
}

func parseFilename(name string) (step, error) {
	if m := gemeenteFullFile.FindStringSubmatch(name); m != nil {
		d, err := parseDate(name, m[2])
		return step{mode: ModeFull, date: d}, err
	}
	if m := nationalFullFile.FindStringSubmatch(name); m != nil {
		d, err := parseDate(name, m[1])
		return step{mode: ModeFull, date: d}, err
	}
	if m := mutationsFile.FindStringSubmatch(name); m != nil {
		prev, err := parseDate(name, m[1])
		if err != nil {
			return step{}, err
		}
		d, err := parseDate(name, m[2])
		return step{mode: ModeMutations, date: d, prev: prev}, err
	}
	return step{}, fmt.Errorf("%w: %q", ErrInvalidFilename, name)
}

func parseDate(name, s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidFilename, name, err)
	}
	return d, nil
}
