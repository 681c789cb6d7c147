package notionsync

import (
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/txgroup/internal/domain"
)

// Property names of the export database.
const (
	PropDescription = "Description"
	PropRecordID    = "Record ID"
	PropDate        = "Date"
	PropAmount      = "Amount"
	PropCalculable  = "Calculable Amount"
	PropCurrency    = "Currency"
	PropRecipient   = "Recipient"
	PropType        = "Type"
	PropCategories  = "Categories"
	PropBatch       = "Batch"
)

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{
				Content: content,
			},
		},
	}
}

// RecordToNotionProperties converts a transaction record to Notion properties.
// Recipient and Type are only set when the record has them.
func RecordToNotionProperties(r domain.TransactionRecord) notionapi.Properties {
	date := notionapi.Date(time.Date(
		r.TransactionDate.Year,
		r.TransactionDate.Month,
		r.TransactionDate.Day,
		0, 0, 0, 0, time.UTC,
	))

	props := notionapi.Properties{
		PropDescription: notionapi.TitleProperty{
			Title: richText(r.Description),
		},
		PropRecordID: notionapi.RichTextProperty{
			RichText: richText(r.ID),
		},
		PropDate: notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &date},
		},
		PropAmount: notionapi.NumberProperty{
			Number: r.Amount.InexactFloat64(),
		},
		PropCalculable: notionapi.NumberProperty{
			Number: r.CalculableAmount().InexactFloat64(),
		},
		PropBatch: notionapi.RichTextProperty{
			RichText: richText(r.FileID),
		},
	}

	if r.Currency != "" {
		props[PropCurrency] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: r.Currency},
		}
	}

	if recipient := r.RecipientOrEmpty(); recipient != "" {
		props[PropRecipient] = notionapi.RichTextProperty{
			RichText: richText(recipient),
		}
	}

	if r.Type != nil && *r.Type != "" {
		props[PropType] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: *r.Type},
		}
	}

	// Always sent so that an update clears removed categories.
	options := make([]notionapi.Option, 0, len(r.Categories))
	for _, c := range r.Categories {
		options = append(options, notionapi.Option{Name: c.Name})
	}
	props[PropCategories] = notionapi.MultiSelectProperty{
		MultiSelect: options,
	}

	return props
}

// extractRecordID extracts the record ID from a Notion page's properties.
// Returns empty string if not found.
func extractRecordID(page notionapi.Page) string {
	if prop, ok := page.Properties[PropRecordID]; ok {
		if rt, ok := prop.(*notionapi.RichTextProperty); ok && len(rt.RichText) > 0 {
			return rt.RichText[0].PlainText
		}
	}
	return ""
}
