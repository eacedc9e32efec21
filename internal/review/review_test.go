package review

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/go-cmp/cmp"
	"github.com/jomei/notionapi"

	"github.com/dvloznov/ledger-import/internal/logger"
	"github.com/dvloznov/ledger-import/internal/merge"
)

// MockNotionService implements NotionService for testing.
type MockNotionService struct {
	CreatePageFunc    func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	QueryDatabaseFunc func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)

	created []notionapi.Properties
}

func (m *MockNotionService) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	m.created = append(m.created, properties)
	if m.CreatePageFunc != nil {
		return m.CreatePageFunc(ctx, databaseID, properties)
	}
	return &notionapi.Page{ID: "page-1"}, nil
}

func (m *MockNotionService) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if m.QueryDatabaseFunc != nil {
		return m.QueryDatabaseFunc(ctx, databaseID, req)
	}
	return &notionapi.DatabaseQueryResponse{}, nil
}

var warning = merge.Warning{
	Key:         "FIT-42",
	CandidateTx: "cand-1",
	MatchedTx:   "match-1",
	Date:        civil.Date{Year: 2023, Month: 3, Day: 1},
	Amount:      -6601,
	Message:     "both the imported and the existing transaction are split; reconcile manually",
}

func TestNotionSink_Flag(t *testing.T) {
	fixed := time.Date(2023, 3, 5, 12, 0, 0, 0, time.UTC)

	t.Run("files a new warning", func(t *testing.T) {
		var queried *notionapi.DatabaseQueryRequest
		mock := &MockNotionService{
			QueryDatabaseFunc: func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
				if databaseID != "db-review" {
					t.Errorf("databaseID = %q", databaseID)
				}
				queried = req
				return &notionapi.DatabaseQueryResponse{}, nil
			},
		}
		sink := NewNotionSink(mock, "db-review")
		sink.now = func() time.Time { return fixed }

		if err := sink.Flag(context.Background(), warning); err != nil {
			t.Fatalf("Flag() error: %v", err)
		}
		if len(mock.created) != 1 {
			t.Fatalf("created %d pages, want 1", len(mock.created))
		}

		filter, ok := queried.Filter.(notionapi.PropertyFilter)
		if !ok || filter.Property != propWarningID || filter.RichText.Equals != "cand-1/match-1" {
			t.Errorf("query filter = %+v", queried.Filter)
		}

		props := mock.created[0]
		title := props[propRecord].(notionapi.TitleProperty)
		if got := title.Title[0].Text.Content; got != "FIT-42" {
			t.Errorf("title = %q, want FIT-42", got)
		}
		if got := props[propAmount].(notionapi.NumberProperty).Number; got != -66.01 {
			t.Errorf("amount = %v, want -66.01", got)
		}
		msg := props[propMessage].(notionapi.RichTextProperty).RichText[0].Text.Content
		if !strings.HasSuffix(msg, "(-66.01)") {
			t.Errorf("message = %q", msg)
		}
		if got := props[propStatus].(notionapi.SelectProperty).Select.Name; got != statusOpen {
			t.Errorf("status = %q", got)
		}
		date := props[propDate].(notionapi.DateProperty).Date.Start
		if got := time.Time(*date); !got.Equal(time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("date = %v", got)
		}
		flagged := props[propFlaggedAt].(notionapi.DateProperty).Date.Start
		if got := time.Time(*flagged); !got.Equal(fixed) {
			t.Errorf("flagged at = %v, want %v", got, fixed)
		}
	})

	t.Run("skips a warning already on file", func(t *testing.T) {
		mock := &MockNotionService{
			QueryDatabaseFunc: func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
				return &notionapi.DatabaseQueryResponse{Results: []notionapi.Page{{ID: "page-0"}}}, nil
			},
		}
		if err := NewNotionSink(mock, "db").Flag(context.Background(), warning); err != nil {
			t.Fatalf("Flag() error: %v", err)
		}
		if len(mock.created) != 0 {
			t.Errorf("created %d pages, want none", len(mock.created))
		}
	})

	t.Run("query error", func(t *testing.T) {
		boom := errors.New("rate limited")
		mock := &MockNotionService{
			QueryDatabaseFunc: func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
				return nil, boom
			},
		}
		err := NewNotionSink(mock, "db").Flag(context.Background(), warning)
		if !errors.Is(err, boom) {
			t.Errorf("Flag() error = %v, want %v", err, boom)
		}
		if len(mock.created) != 0 {
			t.Error("page created after a failed query")
		}
	})

	t.Run("create error", func(t *testing.T) {
		boom := errors.New("forbidden")
		mock := &MockNotionService{
			CreatePageFunc: func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
				return nil, boom
			},
		}
		if err := NewNotionSink(mock, "db").Flag(context.Background(), warning); !errors.Is(err, boom) {
			t.Errorf("Flag() error = %v, want %v", err, boom)
		}
	})
}

func TestWarningProperties_NoKey(t *testing.T) {
	w := warning
	w.Key = ""
	w.Date = civil.Date{}
	props := warningProperties(w, warningID(w), time.Now())

	title := props[propRecord].(notionapi.TitleProperty).Title[0].Text.Content
	if title != "cand-1" {
		t.Errorf("title = %q, want the candidate transaction", title)
	}
	if _, ok := props[propDate]; ok {
		t.Error("date set for a warning without one")
	}
}

func TestLogSink_Flag(t *testing.T) {
	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(&buf))

	if err := (LogSink{}).Flag(ctx, warning); err != nil {
		t.Fatalf("Flag() error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"level":"warn"`, `"record_key":"FIT-42"`, `"amount":"-66.01"`, "Review needed"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s:\n%s", want, out)
		}
	}
}

type sinkFunc func(ctx context.Context, w merge.Warning) error

func (f sinkFunc) Flag(ctx context.Context, w merge.Warning) error { return f(ctx, w) }

func TestMulti_Flag(t *testing.T) {
	first, second := errors.New("first"), errors.New("second")
	var seen []string

	m := Multi{
		sinkFunc(func(ctx context.Context, w merge.Warning) error { seen = append(seen, "a"); return first }),
		sinkFunc(func(ctx context.Context, w merge.Warning) error { seen = append(seen, "b"); return nil }),
		sinkFunc(func(ctx context.Context, w merge.Warning) error { seen = append(seen, "c"); return second }),
	}
	err := m.Flag(context.Background(), warning)
	if !errors.Is(err, first) || !errors.Is(err, second) {
		t.Errorf("Flag() error = %v, want both sink errors", err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, seen); diff != "" {
		t.Errorf("sinks called (-want +got):\n%s", diff)
	}
}
