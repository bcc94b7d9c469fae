package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"text/template"

	"github.com/thinkdifferentdot/maybe/internal/config"
	"github.com/thinkdifferentdot/maybe/internal/pattern"
)

// prompt is the provider-neutral request; adapters format it for their wire protocol.
type prompt struct {
	System         string
	User           string
	TransactionIDs []string
	CategoryNames  []string
}

// Closing lines tell each provider how to shape its answer.
const (
	closingJSONObject = `Respond with ONLY a JSON object of the form {"categorizations": [{"transaction_id": "...", "category_name": "..." or null, "confidence": 0.0}]}.`
	closingTool       = "Use the categorize_transactions tool to provide your categorizations."
)

var instructionsTemplate = template.Must(template.New("instructions").Parse(
	`You are an assistant to a consumer personal finance app. You will be provided a list
of the user's transactions and a list of the user's categories. Your job is to auto-categorize
each transaction.

Closely follow ALL the rules below while auto-categorizing:

- Return 1 result per transaction
- Correlate each transaction by ID (transaction_id)
{{- if .PreferSubcategories}}
- Attempt to match the most specific category possible (i.e. subcategory over parent category)
{{- end}}
{{- if .EnforceClassification}}
- Category and transaction classifications should match (i.e. if transaction is an "expense", the category must have classification of "expense")
{{- end}}
- If you don't know the category, return "null"
{{- range .ToleranceRules}}
  - {{.}}
{{- end}}
  - Only match a category if you're {{.Threshold}}%+ confident it is the correct one.
- Include a "confidence" between 0 and 1 for every category you return
- Each transaction has varying metadata that can be used to determine the category
  - Note: "hint" comes from 3rd party aggregators and typically represents a category name that
    may or may not match any of the user-supplied categories
`))

var requestTemplate = template.Must(template.New("request").Parse(
	`{{.Examples}}Here are the user's available categories in JSON format:

` + "```json" + `
{{.Categories}}
` + "```" + `

Use the available categories to auto-categorize the following transactions:

` + "```json" + `
{{.Transactions}}
` + "```" + `

{{.Closing}}
`))

// toleranceRules returns the prompt wording for a null-tolerance policy.
func toleranceRules(t config.NullTolerance) []string {
	switch t {
	case config.NullToleranceOptimistic:
		return []string{
			`Prefer attempting a match over returning "null" when a category is plausible`,
		}
	case config.NullToleranceBalanced:
		return []string{
			`Weigh returning "null" and a best guess equally`,
			`Return "null" when the transaction metadata gives little evidence either way`,
		}
	default:
		return []string{
			`You should always favor "null" over false positives`,
			`Be slightly pessimistic.`,
		}
	}
}

type transactionPayload struct {
	ID             string  `json:"id"`
	Classification string  `json:"classification"`
	Description    string  `json:"description"`
	Merchant       string  `json:"merchant"`
	Amount         float64 `json:"amount"`
}

type categoryPayload struct {
	ParentID       *string `json:"parent_id"`
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Classification string  `json:"classification"`
	IsSubcategory  bool    `json:"is_subcategory"`
}

// buildPrompt renders the shared categorization policy for one batch.
func buildPrompt(req CategorizeRequest, policy config.CategorizationSettings, closing string) (prompt, error) {
	var instructions bytes.Buffer
	err := instructionsTemplate.Execute(&instructions, struct {
		ToleranceRules        []string
		Threshold             int
		PreferSubcategories   bool
		EnforceClassification bool
	}{
		ToleranceRules:        toleranceRules(policy.NullTolerance),
		Threshold:             policy.ConfidenceThreshold,
		PreferSubcategories:   policy.PreferSubcategories,
		EnforceClassification: policy.EnforceClassification,
	})
	if err != nil {
		return prompt{}, fmt.Errorf("failed to render instructions: %w", err)
	}

	transactions := make([]transactionPayload, 0, len(req.Transactions))
	ids := make([]string, 0, len(req.Transactions))
	for _, txn := range req.Transactions {
		transactions = append(transactions, transactionPayload{
			ID:             txn.ID,
			Amount:         math.Abs(txn.Amount),
			Classification: string(txn.Classification),
			Description:    txn.Description,
			Merchant:       txn.MerchantName,
		})
		ids = append(ids, txn.ID)
	}

	categories := make([]categoryPayload, 0, len(req.Categories))
	names := make([]string, 0, len(req.Categories))
	for _, c := range req.Categories {
		categories = append(categories, categoryPayload{
			ID:             c.ID,
			Name:           c.Name,
			IsSubcategory:  c.IsSubcategory(),
			ParentID:       c.ParentID,
			Classification: string(c.Classification),
		})
		names = append(names, c.Name)
	}

	txnJSON, err := json.MarshalIndent(transactions, "", "  ")
	if err != nil {
		return prompt{}, fmt.Errorf("failed to marshal transactions: %w", err)
	}
	catJSON, err := json.MarshalIndent(categories, "", "  ")
	if err != nil {
		return prompt{}, fmt.Errorf("failed to marshal categories: %w", err)
	}

	var user bytes.Buffer
	err = requestTemplate.Execute(&user, struct {
		Examples     string
		Categories   string
		Transactions string
		Closing      string
	}{
		Examples:     formatExamples(fewShotExamples(req)),
		Categories:   string(catJSON),
		Transactions: string(txnJSON),
		Closing:      closing,
	})
	if err != nil {
		return prompt{}, fmt.Errorf("failed to render request: %w", err)
	}

	return prompt{
		System:         strings.TrimSpace(instructions.String()),
		User:           strings.TrimSpace(user.String()),
		TransactionIDs: ids,
		CategoryNames:  names,
	}, nil
}

// example is one merchant to category demonstration.
type example struct {
	Merchant string
	Category string
}

const (
	maxDynamicExamples = 3
	exampleRankLimit   = 50
)

// staticExamples are well-known merchants shown when the family has a category of that exact name.
var staticExamples = []example{
	{Merchant: "WHOLE FOODS MARKET", Category: "Groceries"},
	{Merchant: "SHELL SERVICE STATION", Category: "Gas & Fuel"},
	{Merchant: "STARBUCKS", Category: "Coffee Shops"},
	{Merchant: "NETFLIX", Category: "Streaming Services"},
	{Merchant: "CHIPOTLE", Category: "Restaurants"},
}

// fewShotExamples combines the applicable static examples with up to three
// learned patterns relevant to the batch, one per category.
func fewShotExamples(req CategorizeRequest) []example {
	byName := make(map[string]bool, len(req.Categories))
	byID := make(map[string]string, len(req.Categories))
	for _, c := range req.Categories {
		byName[c.Name] = true
		byID[c.ID] = c.Name
	}

	var examples []example
	for _, ex := range staticExamples {
		if byName[ex.Category] {
			examples = append(examples, ex)
		}
	}

	if req.Examples == nil {
		return examples
	}

	merchants := make([]string, 0, len(req.Transactions))
	for i := range req.Transactions {
		merchants = append(merchants, req.Transactions[i].Merchant())
	}

	used := make(map[string]bool)
	dynamic := 0
	for _, m := range req.Examples.Rank(req.FamilyID, merchants, exampleRankLimit) {
		if dynamic == maxDynamicExamples {
			break
		}
		name, ok := byID[m.Pattern.CategoryID]
		if !ok || used[m.Pattern.CategoryID] {
			continue
		}
		used[m.Pattern.CategoryID] = true
		examples = append(examples, example{Merchant: m.Pattern.MerchantName, Category: name})
		dynamic++
	}
	return examples
}

func formatExamples(examples []example) string {
	if len(examples) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("EXAMPLES:\n")
	for _, ex := range examples {
		fmt.Fprintf(&b, "Transaction: %s → Category: %s\n", ex.Merchant, ex.Category)
	}
	b.WriteString("\n")
	return b.String()
}

// ExampleSource ranks a family's learned patterns against merchant names.
type ExampleSource interface {
	Rank(familyID string, merchants []string, limit int) []pattern.Match
}

var _ ExampleSource = (*pattern.Index)(nil)
