package importer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/gobimport/internal/connector"
	"github.com/JonMunkholm/gobimport/internal/core"
	"github.com/JonMunkholm/gobimport/internal/entityvalidate"
	"github.com/JonMunkholm/gobimport/internal/mutations"
	"github.com/JonMunkholm/gobimport/internal/validate"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func readLines(t *testing.T, path string) []core.Entity {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []core.Entity
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e core.Entity
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		out = append(out, e)
	}
	require.NoError(t, sc.Err())
	return out
}

var fixedNow = func() time.Time { return time.Date(2021, 2, 1, 12, 0, 0, 0, time.UTC) }

const statesDataset = `
version: "0.1"
catalogue: test_catalogue
entity: test_entity
has_states: true
depends_on: [test_catalogue:other]
source:
  name: AMSBI
  application: TestApp
  entity_id: id
  type: file
  config:
    file_name: rows.csv
    delimiter: ";"
  enrich:
    datum_begin: geldigheid
gob_mapping:
  identificatie:
    type: GOB.String
    source_mapping: id
  volgnummer:
    type: GOB.Integer
    source_mapping: volgnummer
  status:
    type: GOB.String
    source_mapping: status
    filters: [[upper]]
  begin_geldigheid:
    type: GOB.Date
    source_mapping: begin_geldigheid
  eind_geldigheid:
    type: GOB.Date
    source_mapping: eind_geldigheid
`

const statusChecks = `
test_catalogue:
  test_entity:
    status:
      - name: status_abc
        type: regex
        pattern: '^[A-C]$'
        level: WARNING
`

func loadStatesDataset(t *testing.T, rows string) (*core.Dataset, string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "rows.csv", rows)
	ds, err := core.LoadDataset(writeFile(t, dir, "dataset.yaml", statesDataset))
	require.NoError(t, err)
	return ds, dir
}

// =============================================================================
// Client
// =============================================================================

func TestClientRun(t *testing.T) {
	ds, dir := loadStatesDataset(t, "id;volgnummer;status;datum_begin;eind_geldigheid\n"+
		"1;1;a;2020-01-01;2020-06-01\n"+
		"1;2;b;2020-06-01;\n"+
		"2;1;d;2021-03-04;\n")
	checks, err := validate.ParseChecks([]byte(statusChecks))
	require.NoError(t, err)

	out := filepath.Join(dir, "out")
	pub := FilePublisher{Dir: out}
	client := NewClient(Options{Checks: checks, OutputDir: out, Publisher: pub, Now: fixedNow})

	msg, err := client.Run(context.Background(), ds, "")
	require.NoError(t, err)

	assert.Equal(t, 3, msg.Summary["num_records"])
	assert.Equal(t, 3, msg.Summary["num_rows"])
	assert.Equal(t, 0, msg.Summary["num_conversion_failures"])
	assert.Equal(t, 1, msg.Summary["num_invalid_status"])
	assert.Equal(t, 1, msg.Summary["num_WARNING"])

	h := msg.Header
	assert.NotEmpty(t, h.ProcessID)
	assert.Equal(t, "test_catalogue", h.Catalogue)
	assert.Equal(t, "AMSBI", h.Source)
	assert.Equal(t, "TestApp", h.Application)
	assert.Equal(t, "0.1", h.Version)
	assert.Equal(t, "FULL", h.Mode)
	assert.True(t, h.Full)
	assert.Equal(t, []string{"test_catalogue:other"}, h.DependsOn)
	assert.Equal(t, map[string]string{"datum_begin": "geldigheid"}, h.Enrich)
	assert.Equal(t, fixedNow(), h.Timestamp)

	assert.Equal(t, filepath.Join(out, "test_catalogue", "test_entity", h.ProcessID+".ndjson"), msg.ContentsRef)
	entities := readLines(t, msg.ContentsRef)
	require.Len(t, entities, 3)
	assert.Equal(t, "A", entities[0]["status"])
	assert.Equal(t, "1.1", entities[0][core.FieldSourceID])
	assert.Equal(t, "1.2", entities[1][core.FieldSourceID])
	assert.Equal(t, "2020-06-01T00:00:00Z", entities[1][core.FieldStartValidity])
	assert.Nil(t, entities[1][core.FieldEndValidity])

	data, err := os.ReadFile(pub.Path(msg))
	require.NoError(t, err)
	var published Message
	require.NoError(t, json.Unmarshal(data, &published))
	assert.Equal(t, msg.ContentsRef, published.ContentsRef)
	assert.Equal(t, 3, published.Summary["num_records"])
}

func TestClientRun_ValidationFails(t *testing.T) {
	ds, dir := loadStatesDataset(t, "id;volgnummer;status;datum_begin;eind_geldigheid\n"+
		"1;1;a;2020-01-01;\n"+
		"1;1;b;2020-06-01;\n")

	out := filepath.Join(dir, "out")
	pub := FilePublisher{Dir: out}
	client := NewClient(Options{OutputDir: out, Publisher: pub, Now: fixedNow})

	msg, err := client.Run(context.Background(), ds, mutations.ModeMutations)
	require.Error(t, err)
	assert.ErrorIs(t, err, validate.ErrDuplicatePrimaryKeys)
	assert.ErrorIs(t, err, entityvalidate.ErrEntityValidation)
	assert.Contains(t, err.Error(), "test_catalogue.test_entity")

	require.NotNil(t, msg)
	assert.Equal(t, 2, msg.Summary["num_records"])
	assert.Equal(t, "MUTATIONS", msg.Header.Mode)
	assert.False(t, msg.Header.Full)
	assert.NoFileExists(t, pub.Path(msg), "failed imports are not published")
}

func TestClientRun_SourceMissing(t *testing.T) {
	ds, err := core.ParseDataset(filepath.Join(t.TempDir(), "dataset.yaml"), []byte(statesDataset))
	require.NoError(t, err)

	client := NewClient(Options{OutputDir: t.TempDir()})
	msg, err := client.Run(context.Background(), ds, "")
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Nil(t, msg)
}

func TestClientRun_Merge(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "primary.csv", "code,naam\nA,prim\nC,other\n")
	writeFile(t, dir, "secondary.csv", "code,volgnummer,naam\nA,2,new\nA,1,old\nB,1,lonely\n")
	writeFile(t, dir, "secondary.yaml", `
catalogue: test_catalogue
entity: secondary
has_states: true
source: {name: DIVA, application: DIVA, entity_id: code, type: file, config: {file_name: secondary.csv}}
gob_mapping:
  code: {type: GOB.String, source_mapping: code}
  volgnummer: {type: GOB.Integer, source_mapping: volgnummer}
  naam_diva: {type: GOB.String, source_mapping: naam}
`)
	ds, err := core.LoadDataset(writeFile(t, dir, "primary.yaml", `
catalogue: test_catalogue
entity: primary
source:
  name: DGDialog
  application: DGDialog
  entity_id: code
  type: file
  config: {file_name: primary.csv}
  merge: {dataset: secondary.yaml, id: diva_into_dgdialog, on: code, copy: [naam_diva]}
gob_mapping:
  code: {type: GOB.String, source_mapping: code}
  naam: {type: GOB.String, source_mapping: naam}
`))
	require.NoError(t, err)

	client := NewClient(Options{OutputDir: filepath.Join(dir, "out")})
	msg, err := client.Run(context.Background(), ds, "")
	require.NoError(t, err)

	entities := readLines(t, msg.ContentsRef)
	var ids []string
	for _, e := range entities {
		ids = append(ids, e[core.FieldSourceID].(string))
	}
	assert.Equal(t, []string{"A.1", "A", "C", "B.1"}, ids)
	assert.Equal(t, "new", entities[1]["naam_diva"])
	assert.Equal(t, 2, msg.Summary["num_rows"])
	assert.Equal(t, 4, msg.Summary["num_records"])
}

// =============================================================================
// Injector
// =============================================================================

func TestInjector(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "patch.csv", "id,aantal,naam,leeg\n1,3,patched,\n")
	ds := &core.Dataset{
		Path: filepath.Join(dir, "dataset.yaml"),
		Source: core.Source{Inject: &core.InjectConfig{
			File:        "patch.csv",
			On:          "id",
			Conversions: map[string]string{"aantal": ConvertAdd},
		}},
	}

	inj, err := NewInjector(context.Background(), ds, connector.Deps{})
	require.NoError(t, err)
	require.Equal(t, 1, inj.Len())

	row := core.Row{"id": "1", "aantal": "2", "naam": "orig", "leeg": "keep"}
	require.NoError(t, inj.Inject(row))
	assert.Equal(t, core.Row{"id": "1", "aantal": "5", "naam": "patched", "leeg": "keep"}, row)

	row = core.Row{"id": "1", "aantal": nil}
	require.NoError(t, inj.Inject(row))
	assert.Equal(t, "3", row["aantal"])

	other := core.Row{"id": "2", "naam": "orig"}
	require.NoError(t, inj.Inject(other))
	assert.Equal(t, "orig", other["naam"])

	bad := core.Row{"id": "1", "aantal": "veel"}
	assert.Error(t, inj.Inject(bad))
}

func TestNewInjector_Config(t *testing.T) {
	inj, err := NewInjector(context.Background(), &core.Dataset{}, connector.Deps{})
	require.NoError(t, err)
	assert.Nil(t, inj)

	ds := &core.Dataset{Source: core.Source{Inject: &core.InjectConfig{
		File: "patch.csv", On: "id", Conversions: map[string]string{"x": "*"},
	}}}
	_, err = NewInjector(context.Background(), ds, connector.Deps{})
	assert.ErrorIs(t, err, ErrUnknownConversion)

	ds.Source.Inject = &core.InjectConfig{File: "patch.csv"}
	_, err = NewInjector(context.Background(), ds, connector.Deps{})
	assert.ErrorContains(t, err, "requires file and on")
}

// =============================================================================
// Enrichers
// =============================================================================

func TestGeldigheidEnricher(t *testing.T) {
	en, err := newEnrichment(&core.Dataset{
		Source: core.Source{Enrich: map[string]string{"datum": "geldigheid"}},
	}, discardLogger())
	require.NoError(t, err)

	row := core.Row{"datum": "2020-01-01", "begin_geldigheid": "", "eind_geldigheid": ""}
	require.NoError(t, en.enrich(row))
	assert.Equal(t, "2020-01-01", row["begin_geldigheid"])
	assert.Nil(t, row["eind_geldigheid"])

	row = core.Row{"datum": "2020-01-01", "begin_geldigheid": "2019-05-05"}
	require.NoError(t, en.enrich(row))
	assert.Equal(t, "2019-05-05", row["begin_geldigheid"])
	_, hasEnd := row["eind_geldigheid"]
	assert.False(t, hasEnd)
}

type notApplicable struct{}

func (notApplicable) Applies(catalogue, _ string) bool { return catalogue == "bag" }

func (notApplicable) Enrich(row core.Row, col string) error {
	row[col] = "x"
	return nil
}

func TestEnrichment_Registry(t *testing.T) {
	RegisterEnricher("test_bag_only", notApplicable{})
	assert.Contains(t, Enrichers(), "geldigheid")
	assert.Panics(t, func() { RegisterEnricher("geldigheid", geldigheid{}) })

	_, err := newEnrichment(&core.Dataset{
		Source: core.Source{Enrich: map[string]string{"a": "nope"}},
	}, discardLogger())
	assert.ErrorIs(t, err, ErrUnknownEnricher)

	en, err := newEnrichment(&core.Dataset{
		Catalogue: "gebieden",
		Source:    core.Source{Enrich: map[string]string{"a": "test_bag_only"}},
	}, discardLogger())
	require.NoError(t, err)
	assert.Empty(t, en)
}

// =============================================================================
// Mutation imports
// =============================================================================

type runCall struct {
	ds   *core.Dataset
	mode mutations.Mode
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []runCall
	err   error
	block chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, ds *core.Dataset, mode mutations.Mode) (*Message, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, runCall{ds: ds, mode: mode})
	if f.err != nil {
		return nil, f.err
	}
	return &Message{Header: Header{Catalogue: ds.Catalogue, Mode: string(mode)}}, nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeLister publishes files after a number of empty listings.
type fakeLister struct {
	mu        sync.Mutex
	files     []string
	emptyRuns int
	calls     int
}

func (l *fakeLister) List(_ context.Context, _ string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.calls <= l.emptyRuns {
		return nil, nil
	}
	return l.files, nil
}

func bagDataset() *core.Dataset {
	return &core.Dataset{
		Catalogue: "bag",
		Entity:    "verblijfsobjecten",
		Source:    core.Source{Name: "BAG", Application: "BAGExtract", EntityID: "id"},
	}
}

func bagOptions(l mutations.Lister) mutations.Options {
	return mutations.Options{
		BaseURL:  "https://extracts.example.com/bag",
		Gemeente: "0363",
		Lister:   l,
		Now:      func() time.Time { return time.Date(2021, 1, 20, 8, 0, 0, 0, time.UTC) },
	}
}

func TestMutationsImport_Sequence(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{files: []string{"BAGGEM0363L-15012021.zip"}}
	store := mutations.NewMemoryStore()
	runner := &fakeRunner{}
	mi := NewMutationsImport(runner, store, bagOptions(lister))
	ds := bagDataset()

	_, err := mi.Run(ctx, ds)
	require.NoError(t, err)
	require.Equal(t, 1, runner.count())
	call := runner.calls[0]
	assert.Equal(t, mutations.ModeFull, call.mode)
	loc := call.ds.Source.ConfigString(mutations.ReadConfigDownloadLocation)
	assert.True(t, strings.HasSuffix(loc, "/BAGGEM0363L-15012021.zip"), loc)
	assert.Empty(t, ds.Source.ReadConfig, "dataset is not modified")

	last, err := store.GetLast(ctx, "bag", "verblijfsobjecten", "BAGExtract")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Ended())
	assert.Equal(t, "BAGGEM0363L-15012021.zip", last.Filename)

	_, err = mi.Run(ctx, ds)
	assert.ErrorIs(t, err, mutations.ErrNotYetAvailable)
	assert.Equal(t, 1, runner.count())
	again, err := store.GetLast(ctx, "bag", "verblijfsobjecten", "BAGExtract")
	require.NoError(t, err)
	assert.Equal(t, last.ID, again.ID, "no record for an unavailable file")

	lister.files = append(lister.files, "BAGNLDM-15012021-16012021.zip")
	_, err = mi.Run(ctx, ds)
	require.NoError(t, err)
	assert.Equal(t, mutations.ModeMutations, runner.calls[1].mode)
	assert.NotEmpty(t, runner.calls[1].ds.Source.ConfigString(mutations.ReadConfigLastFullDownloadLocation))
}

func TestMutationsImport_RestartAfterFailure(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{files: []string{"BAGGEM0363L-15012021.zip"}}
	store := mutations.NewMemoryStore()
	runner := &fakeRunner{err: errors.New("connection reset")}
	mi := NewMutationsImport(runner, store, bagOptions(lister))

	_, err := mi.Run(ctx, bagDataset())
	require.Error(t, err)
	failed, err := store.GetLast(ctx, "bag", "verblijfsobjecten", "BAGExtract")
	require.NoError(t, err)
	require.NotNil(t, failed)
	assert.False(t, failed.Ended())

	runner.err = nil
	_, err = mi.Run(ctx, bagDataset())
	require.NoError(t, err)
	done, err := store.GetLast(ctx, "bag", "verblijfsobjecten", "BAGExtract")
	require.NoError(t, err)
	assert.Equal(t, failed.ID, done.ID)
	assert.Equal(t, failed.Filename, done.Filename)
	assert.True(t, done.Ended())
}

func TestMutationsImport_State(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{files: []string{"BAGGEM0363L-15012021.zip"}}
	mi := NewMutationsImport(&fakeRunner{}, mutations.NewMemoryStore(), bagOptions(lister))

	last, next, err := mi.State(ctx, "bag", "verblijfsobjecten", "BAGExtract")
	require.NoError(t, err)
	assert.Nil(t, last)
	assert.True(t, next)

	_, err = mi.Run(ctx, bagDataset())
	require.NoError(t, err)

	last, next, err = mi.State(ctx, "bag", "verblijfsobjecten", "BAGExtract")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.False(t, next)

	_, _, err = mi.State(ctx, "bag", "verblijfsobjecten", "Unknown")
	assert.ErrorIs(t, err, mutations.ErrUnknownApplication)
}

func TestWaitForNext(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{files: []string{"BAGGEM0363L-15012021.zip"}, emptyRuns: 2}
	runner := &fakeRunner{}
	mi := NewMutationsImport(runner, mutations.NewMemoryStore(), bagOptions(lister))

	msg, err := mi.WaitForNext(ctx, bagDataset(), backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 5))
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, 3, lister.calls)
	assert.Equal(t, 1, runner.count())
}

func TestWaitForNext_GivesUp(t *testing.T) {
	lister := &fakeLister{}
	mi := NewMutationsImport(&fakeRunner{}, mutations.NewMemoryStore(), bagOptions(lister))

	_, err := mi.WaitForNext(context.Background(), bagDataset(), backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2))
	assert.ErrorIs(t, err, mutations.ErrNotYetAvailable)
	assert.Equal(t, 3, lister.calls)
}

func TestWaitForNext_PermanentError(t *testing.T) {
	lister := &fakeLister{files: []string{"BAGGEM0363L-15012021.zip"}}
	runner := &fakeRunner{err: errors.New("disk full")}
	mi := NewMutationsImport(runner, mutations.NewMemoryStore(), bagOptions(lister))

	_, err := mi.WaitForNext(context.Background(), bagDataset(), backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 5))
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, 1, runner.count())
}
