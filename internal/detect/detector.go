// Package detect classifies short text snippets into semantic invoice field
// types using regex patterns and context keywords. It assists template
// authoring with suggestions; it is not part of the bulk extraction path.
package detect

import (
	"regexp"
	"sort"
	"strings"
)

// FieldType is the semantic type of an extracted value.
type FieldType string

const (
	FieldTypeInvoiceNumber FieldType = "invoice_number"
	FieldTypeDate          FieldType = "date"
	FieldTypeAmount        FieldType = "amount"
	FieldTypeTotalAmount   FieldType = "total_amount"
	FieldTypeVATNumber     FieldType = "vat_number"
	FieldTypeCompanyName   FieldType = "company_name"
	FieldTypeAddress       FieldType = "address"
	FieldTypeEmail         FieldType = "email"
	FieldTypePhone         FieldType = "phone"
	FieldTypeOrderNumber   FieldType = "order_number"
	FieldTypeProjectNumber FieldType = "project_number"
	FieldTypeUnknown       FieldType = "unknown"
)

// Confidence expresses how certain a detection is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// rank orders confidences for sorting; higher is better.
func (c Confidence) rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	default:
		return 1
	}
}

// Detection is the result of classifying one text snippet.
type Detection struct {
	FieldType       FieldType  `json:"field_type"`
	Confidence      Confidence `json:"confidence"`
	Value           string     `json:"value"`
	MatchedPattern  string     `json:"matched_pattern,omitempty"`
	ContextKeywords []string   `json:"context_keywords,omitempty"`
}

// Detector holds the compiled patterns and context keywords per field type.
// It is stateless after construction and safe for concurrent use.
type Detector struct {
	patterns map[FieldType][]*regexp.Regexp
	keywords map[FieldType][]string
	order    []FieldType
}

// NewDetector creates a detector with the built-in bilingual rule set.
func NewDetector() *Detector {
	return &Detector{
		patterns: map[FieldType][]*regexp.Regexp{
			FieldTypeInvoiceNumber: {
				regexp.MustCompile(`(?i)^[A-Z0-9\-/]{4,20}$`),
				regexp.MustCompile(`(?i)^INV[-_]?[0-9]{4,}$`),
				regexp.MustCompile(`(?i)^FAKT[-_]?[0-9]{4,}$`),
			},
			FieldTypeDate: {
				regexp.MustCompile(`^\d{4}[-/]\d{2}[-/]\d{2}$`),
				regexp.MustCompile(`^\d{2}[-/.]\d{2}[-/.]\d{4}$`),
				regexp.MustCompile(`^\d{2}[-/.]\d{2}[-/.]\d{2}$`),
				regexp.MustCompile(`(?i)^\d{1,2}\s+(januari|februari|mars|april|maj|juni|juli|augusti|september|oktober|november|december)\s+\d{4}$`),
			},
			FieldTypeAmount: {
				regexp.MustCompile(`(?i)^\d{1,3}(?:\s?\d{3})*(?:[,.]\d{2})?\s*(?:SEK|EUR|USD|kr|€|\$)?$`),
				regexp.MustCompile(`^\d{1,3}(?:\s?\d{3})*(?:[,.]\d{2})?$`),
			},
			FieldTypeVATNumber: {
				regexp.MustCompile(`(?i)^SE\d{12}$`),
				regexp.MustCompile(`(?i)^SE[- ]?\d{12}$`),
			},
			FieldTypeEmail: {
				regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`),
			},
			FieldTypePhone: {
				regexp.MustCompile(`^\+?[\d\s\-()]{8,}$`),
				regexp.MustCompile(`^0\d{1,3}[- ]?\d{2,4}[- ]?\d{2,4}[- ]?\d{2,4}$`),
			},
			FieldTypeOrderNumber: {
				regexp.MustCompile(`(?i)^ORD[-_]?[0-9]{4,}$`),
				regexp.MustCompile(`(?i)^ORDER[-_]?[0-9]{4,}$`),
			},
			FieldTypeProjectNumber: {
				regexp.MustCompile(`(?i)^PROJ[-_]?[0-9]{4,}$`),
				regexp.MustCompile(`(?i)^PROJECT[-_]?[0-9]{4,}$`),
			},
		},
		keywords: map[FieldType][]string{
			FieldTypeInvoiceNumber: {
				"fakturanummer", "invoice number", "invoice no", "faktura nr",
				"invoice", "faktura", "invoice#", "faktura#",
			},
			FieldTypeDate: {
				"datum", "date", "faktureringsdatum", "invoice date", "betaldatum",
				"due date", "förfallodatum", "datum:", "date:",
			},
			FieldTypeAmount: {
				"belopp", "amount", "pris", "price", "summa", "sum",
				"belopp:", "amount:", "kr", "sek",
			},
			FieldTypeTotalAmount: {
				"total", "totalt", "total:", "totalt:", "summa", "total amount",
				"totalt belopp", "totalsumma", "total sum",
			},
			FieldTypeVATNumber: {
				"momsnummer", "vat number", "vat no", "organisationsnummer",
				"org nr", "vat", "moms", "momsnr",
			},
			FieldTypeCompanyName: {
				"företag", "company", "leverantör", "supplier", "kund", "customer",
				"fakturerad till", "billed to", "från", "from",
			},
			FieldTypeAddress: {
				"adress", "address", "gata", "street", "postnummer", "zip code",
				"post code", "stad", "city", "land", "country",
			},
			FieldTypeEmail: {
				"e-post", "email", "e-mail", "mail", "epost",
			},
			FieldTypePhone: {
				"telefon", "phone", "tel", "telefonnummer", "phone number",
				"tfn", "tel:", "phone:",
			},
			FieldTypeOrderNumber: {
				"ordernummer", "order number", "order no", "order nr",
				"order", "order#", "ordernr",
			},
			FieldTypeProjectNumber: {
				"projektnummer", "project number", "project no", "project nr",
				"projekt", "project", "proj", "projekt#",
			},
		},
		// Evaluation order decides ties between equal-ranked detections.
		// Specific formats come before the broad invoice-number and amount
		// patterns, which would otherwise swallow dates and plain numbers.
		order: []FieldType{
			FieldTypeDate,
			FieldTypeEmail,
			FieldTypeVATNumber,
			FieldTypePhone,
			FieldTypeOrderNumber,
			FieldTypeProjectNumber,
			FieldTypeInvoiceNumber,
			FieldTypeAmount,
			FieldTypeTotalAmount,
			FieldTypeCompanyName,
			FieldTypeAddress,
		},
	}
}

// DetectFieldType classifies a text snippet, optionally using nearby context
// text (a label in front of the value, usually). A pattern match alone gives
// HIGH confidence, a context keyword alone MEDIUM; both together stay HIGH
// with the keywords attached. Empty input is UNKNOWN.
func (d *Detector) DetectFieldType(text, context string) Detection {
	text = strings.TrimSpace(text)
	if text == "" {
		return Detection{FieldType: FieldTypeUnknown, Confidence: ConfidenceLow, Value: text}
	}
	contextLower := strings.ToLower(context)

	var detections []Detection
	for _, fieldType := range d.order {
		var patternMatch string
		for _, pattern := range d.patterns[fieldType] {
			if pattern.MatchString(text) {
				patternMatch = pattern.String()
				break
			}
		}

		var contextKeywords []string
		for _, keyword := range d.keywords[fieldType] {
			if contextLower != "" && strings.Contains(contextLower, strings.ToLower(keyword)) {
				contextKeywords = append(contextKeywords, keyword)
				break
			}
		}

		switch {
		case patternMatch != "" && len(contextKeywords) > 0:
			detections = append(detections, Detection{
				FieldType:       fieldType,
				Confidence:      ConfidenceHigh,
				Value:           text,
				MatchedPattern:  patternMatch,
				ContextKeywords: contextKeywords,
			})
		case patternMatch != "":
			detections = append(detections, Detection{
				FieldType:      fieldType,
				Confidence:     ConfidenceHigh,
				Value:          text,
				MatchedPattern: patternMatch,
			})
		case len(contextKeywords) > 0:
			detections = append(detections, Detection{
				FieldType:       fieldType,
				Confidence:      ConfidenceMedium,
				Value:           text,
				ContextKeywords: contextKeywords,
			})
		}
	}

	// Total amount overrides plain amount when the context names a total
	// and the text looks like an amount.
	if kws := d.matchedKeywords(FieldTypeTotalAmount, contextLower); len(kws) > 0 {
		for _, pattern := range d.patterns[FieldTypeAmount] {
			if pattern.MatchString(text) {
				detections = append([]Detection{{
					FieldType:       FieldTypeTotalAmount,
					Confidence:      ConfidenceHigh,
					Value:           text,
					MatchedPattern:  pattern.String(),
					ContextKeywords: kws,
				}}, detections...)
				break
			}
		}
	}

	if len(detections) == 0 {
		return Detection{FieldType: FieldTypeUnknown, Confidence: ConfidenceLow, Value: text}
	}

	// Context keywords disambiguate better than a bare pattern hit: a value
	// labelled "Ordernummer" is an order number even when the digits also
	// satisfy the generic invoice-number pattern. Rank context matches
	// first, then confidence; stable sort keeps evaluation order on ties.
	sort.SliceStable(detections, func(i, j int) bool {
		iCtx, jCtx := len(detections[i].ContextKeywords) > 0, len(detections[j].ContextKeywords) > 0
		if iCtx != jCtx {
			return iCtx
		}
		return detections[i].Confidence.rank() > detections[j].Confidence.rank()
	})
	return detections[0]
}

func (d *Detector) matchedKeywords(fieldType FieldType, contextLower string) []string {
	var matched []string
	for _, keyword := range d.keywords[fieldType] {
		if contextLower != "" && strings.Contains(contextLower, strings.ToLower(keyword)) {
			matched = append(matched, keyword)
		}
	}
	return matched
}

// lineSeparator splits a "keyword: value" line on its first separator.
var lineSeparator = regexp.MustCompile(`[:;,]`)

// DetectFieldsInText scans a multi-line text for recognizable fields. Lines
// with a separator are split into a label/value pair and the value is
// classified with the label as context; lines without one are classified
// whole. Unknown detections are dropped. This feeds template authoring
// suggestions and is deliberately best-effort.
func (d *Detector) DetectFieldsInText(text string) []Detection {
	if text == "" {
		return nil
	}

	var detections []Detection
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var detection Detection
		if loc := lineSeparator.FindStringIndex(line); loc != nil {
			label := strings.TrimSpace(line[:loc[0]])
			value := strings.TrimSpace(line[loc[1]:])
			detection = d.DetectFieldType(value, label)
		} else {
			detection = d.DetectFieldType(line, "")
		}

		if detection.FieldType != FieldTypeUnknown {
			detections = append(detections, detection)
		}
	}
	return detections
}

// SuggestFieldName proposes a Swedish display name for a field type, used
// to pre-fill mapping names in the template editor.
func SuggestFieldName(fieldType FieldType) string {
	switch fieldType {
	case FieldTypeInvoiceNumber:
		return "Fakturanummer"
	case FieldTypeDate:
		return "Datum"
	case FieldTypeAmount:
		return "Belopp"
	case FieldTypeTotalAmount:
		return "Totalt"
	case FieldTypeVATNumber:
		return "Momsnummer"
	case FieldTypeCompanyName:
		return "Företagsnamn"
	case FieldTypeAddress:
		return "Adress"
	case FieldTypeEmail:
		return "E-post"
	case FieldTypePhone:
		return "Telefon"
	case FieldTypeOrderNumber:
		return "Ordernummer"
	case FieldTypeProjectNumber:
		return "Projektnummer"
	default:
		return "Okänt fält"
	}
}
