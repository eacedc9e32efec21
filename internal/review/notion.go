package review

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-import/internal/importer"
	"github.com/dvloznov/ledger-import/internal/logger"
	"github.com/dvloznov/ledger-import/internal/merge"
	"github.com/dvloznov/ledger-import/internal/money"
)

// NotionService is the part of the Notion API the sink needs.
type NotionService interface {
	// CreatePage creates a new page in a Notion database with the given properties.
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)

	// QueryDatabase queries a Notion database with the given filter.
	QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

// NotionClient implements NotionService with the notionapi SDK.
type NotionClient struct {
	client *notionapi.Client
}

// NewNotionClient creates a NotionClient with the provided API token.
func NewNotionClient(token string) *NotionClient {
	return &NotionClient{
		client: notionapi.NewClient(notionapi.Token(token)),
	}
}

// CreatePage creates a new page in a Notion database with the given properties.
func (n *NotionClient) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
	}

	page, err := n.client.Page.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("CreatePage: %w", err)
	}
	return page, nil
}

// QueryDatabase queries a Notion database with the given filter.
func (n *NotionClient) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	resp, err := n.client.Database.Query(ctx, notionapi.DatabaseID(databaseID), req)
	if err != nil {
		return nil, fmt.Errorf("QueryDatabase: %w", err)
	}
	return resp, nil
}

// Property names of the review database.
const (
	propRecord    = "Record"
	propWarningID = "Warning ID"
	propMessage   = "Message"
	propDate      = "Date"
	propAmount    = "Amount"
	propCandidate = "Imported Transaction"
	propMatched   = "Existing Transaction"
	propStatus    = "Status"
	propFlaggedAt = "Flagged At"

	statusOpen = "Open"
)

// NotionSink files one page per warning in a Notion database. A warning
// already on file is not filed again, so re-running an import does not
// duplicate the queue.
type NotionSink struct {
	client     NotionService
	databaseID string
	now        func() time.Time
}

// NewNotionSink creates a sink writing to databaseID.
func NewNotionSink(client NotionService, databaseID string) *NotionSink {
	return &NotionSink{client: client, databaseID: databaseID, now: time.Now}
}

// Flag implements importer.Sink.
func (s *NotionSink) Flag(ctx context.Context, w merge.Warning) error {
	log := logger.FromContext(ctx)
	id := warningID(w)

	exists, err := s.exists(ctx, id)
	if err != nil {
		return fmt.Errorf("Flag: %s: %w", w.Key, err)
	}
	if exists {
		log.Debug().Str("warning_id", id).Msg("Warning already filed in Notion")
		return nil
	}

	page, err := s.client.CreatePage(ctx, s.databaseID, warningProperties(w, id, s.now()))
	if err != nil {
		return fmt.Errorf("Flag: %s: %w", w.Key, err)
	}
	log.Info().
		Str("warning_id", id).
		Str("page_id", string(page.ID)).
		Msg("Filed warning in Notion")
	return nil
}

func (s *NotionSink) exists(ctx context.Context, id string) (bool, error) {
	resp, err := s.client.QueryDatabase(ctx, s.databaseID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: propWarningID,
			RichText: &notionapi.TextFilterCondition{Equals: id},
		},
		PageSize: 1,
	})
	if err != nil {
		return false, err
	}
	return len(resp.Results) > 0, nil
}

// warningID identifies a warning by the pair of transactions it is about.
func warningID(w merge.Warning) string {
	return w.CandidateTx + "/" + w.MatchedTx
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: s},
		},
	}
}

// warningProperties converts a warning to properties of the review database.
func warningProperties(w merge.Warning, id string, flaggedAt time.Time) notionapi.Properties {
	title := w.Key
	if title == "" {
		title = w.CandidateTx
	}

	props := notionapi.Properties{
		propRecord: notionapi.TitleProperty{
			Title: richText(title),
		},
		propWarningID: notionapi.RichTextProperty{
			RichText: richText(id),
		},
		propMessage: notionapi.RichTextProperty{
			RichText: richText(fmt.Sprintf("%s (%s)", w.Message, money.Format(w.Amount))),
		},
		propAmount: notionapi.NumberProperty{
			Number: decimal.New(w.Amount, -money.Scale).InexactFloat64(),
		},
		propCandidate: notionapi.RichTextProperty{
			RichText: richText(w.CandidateTx),
		},
		propMatched: notionapi.RichTextProperty{
			RichText: richText(w.MatchedTx),
		},
		propStatus: notionapi.SelectProperty{
			Select: notionapi.Option{Name: statusOpen},
		},
	}

	if w.Date.IsValid() {
		d := notionapi.Date(w.Date.In(time.UTC))
		props[propDate] = notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &d},
		}
	}

	at := notionapi.Date(flaggedAt.UTC())
	props[propFlaggedAt] = notionapi.DateProperty{
		Date: &notionapi.DateObject{Start: &at},
	}
	return props
}

var _ importer.Sink = (*NotionSink)(nil)
