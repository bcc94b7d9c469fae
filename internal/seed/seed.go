// Package seed loads families, categories, transactions and learned patterns
// from a YAML file into storage.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/thinkdifferentdot/maybe/internal/common"
	"github.com/thinkdifferentdot/maybe/internal/model"
	"github.com/thinkdifferentdot/maybe/internal/pattern"
	"github.com/thinkdifferentdot/maybe/internal/service"
)

const dateLayout = "2006-01-02"

// ErrInvalidSeed is returned for structurally invalid seed files.
var ErrInvalidSeed = errors.New("invalid seed file")

// File is the top-level seed document.
type File struct {
	Families []Family `yaml:"families"`
}

// Family groups the records of one family.
type Family struct {
	ID           string        `yaml:"id"`
	Categories   []Category    `yaml:"categories"`
	Transactions []Transaction `yaml:"transactions"`
	Patterns     []Pattern     `yaml:"patterns"`
}

// Category is a seeded category. Parent refers to another category by name.
type Category struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Parent         string `yaml:"parent"`
	Classification string `yaml:"classification"`
}

// Transaction is a seeded transaction. Without an id, one is derived from
// the other fields so re-importing the same file does not duplicate rows.
type Transaction struct {
	ID             string  `yaml:"id"`
	Date           string  `yaml:"date"`
	Description    string  `yaml:"description"`
	Merchant       string  `yaml:"merchant"`
	Classification string  `yaml:"classification"`
	Amount         float64 `yaml:"amount"`
}

// Pattern maps a merchant to a category by name.
type Pattern struct {
	Merchant string `yaml:"merchant"`
	Category string `yaml:"category"`
}

// Stats counts what an import wrote.
type Stats struct {
	Families     int
	Categories   int
	Transactions int
	Patterns     int
}

// Parse decodes a seed document.
func Parse(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}
	for i, fam := range f.Families {
		if strings.TrimSpace(fam.ID) == "" {
			return nil, fmt.Errorf("%w: family at index %d has no id", ErrInvalidSeed, i)
		}
	}
	return &f, nil
}

// Importer writes seed files to storage.
type Importer struct {
	storage service.Storage
	logger  *slog.Logger
}

// NewImporter creates an importer.
func NewImporter(storage service.Storage, logger *slog.Logger) *Importer {
	return &Importer{storage: storage, logger: common.LoggerOrDefault(logger)}
}

// Import writes every family in f. Categories are matched by name so
// importing the same file twice updates rather than duplicates them.
func (im *Importer) Import(ctx context.Context, f *File) (Stats, error) {
	var stats Stats
	for _, fam := range f.Families {
		if err := im.importFamily(ctx, fam, &stats); err != nil {
			return stats, fmt.Errorf("family %s: %w", fam.ID, err)
		}
		stats.Families++
	}

	im.logger.Info("Seed import finished",
		"family_count", stats.Families,
		"category_count", stats.Categories,
		"transaction_count", stats.Transactions,
		"pattern_count", stats.Patterns)
	return stats, nil
}

func (im *Importer) importFamily(ctx context.Context, fam Family, stats *Stats) error {
	categoryIDs, err := im.importCategories(ctx, fam)
	if err != nil {
		return err
	}
	stats.Categories += len(fam.Categories)

	if len(fam.Transactions) > 0 {
		txns := make([]model.Transaction, 0, len(fam.Transactions))
		for i, t := range fam.Transactions {
			txn, err := t.model(fam.ID)
			if err != nil {
				return fmt.Errorf("transaction at index %d: %w", i, err)
			}
			txns = append(txns, txn)
		}
		if err := im.storage.SaveTransactions(ctx, txns); err != nil {
			return err
		}
		stats.Transactions += len(txns)
	}

	for _, p := range fam.Patterns {
		categoryID, ok := categoryIDs[p.Category]
		if !ok {
			return fmt.Errorf("%w: pattern %q refers to unknown category %q", ErrInvalidSeed, p.Merchant, p.Category)
		}
		lp := model.LearnedPattern{
			FamilyID:           fam.ID,
			CategoryID:         categoryID,
			MerchantName:       p.Merchant,
			NormalizedMerchant: pattern.Normalize(p.Merchant),
		}
		created, err := im.storage.CreateLearnedPattern(ctx, &lp)
		if err != nil {
			return err
		}
		if created {
			stats.Patterns++
		}
	}
	return nil
}

// importCategories saves the family's categories and returns name to id for
// every category the family has afterwards.
func (im *Importer) importCategories(ctx context.Context, fam Family) (map[string]string, error) {
	existing, err := im.storage.GetCategories(ctx, fam.ID)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]string, len(existing)+len(fam.Categories))
	for _, c := range existing {
		ids[c.Name] = c.ID
	}

	for _, c := range fam.Categories {
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("%w: category without a name", ErrInvalidSeed)
		}
		switch {
		case c.ID != "":
			ids[c.Name] = c.ID
		case ids[c.Name] == "":
			ids[c.Name] = uuid.NewString()
		}
	}

	if len(fam.Categories) == 0 {
		return ids, nil
	}

	categories := make([]model.Category, 0, len(fam.Categories))
	for _, c := range fam.Categories {
		cat := model.Category{
			ID:             ids[c.Name],
			FamilyID:       fam.ID,
			Name:           c.Name,
			Classification: model.Classification(c.Classification),
		}
		if c.Parent != "" {
			parentID, ok := ids[c.Parent]
			if !ok {
				return nil, fmt.Errorf("%w: category %q has unknown parent %q", ErrInvalidSeed, c.Name, c.Parent)
			}
			cat.ParentID = &parentID
		}
		categories = append(categories, cat)
	}

	if err := im.storage.SaveCategories(ctx, categories); err != nil {
		return nil, err
	}
	return ids, nil
}

func (t Transaction) model(familyID string) (model.Transaction, error) {
	date, err := time.Parse(dateLayout, t.Date)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("%w: date %q: %w", ErrInvalidSeed, t.Date, err)
	}
	if strings.TrimSpace(t.Description) == "" {
		return model.Transaction{}, fmt.Errorf("%w: missing description", ErrInvalidSeed)
	}

	id := t.ID
	if id == "" {
		key := fmt.Sprintf("%s|%s|%s|%s|%.2f", familyID, t.Date, t.Description, t.Merchant, t.Amount)
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
	}

	return model.Transaction{
		ID:             id,
		FamilyID:       familyID,
		Date:           date,
		Description:    t.Description,
		MerchantName:   t.Merchant,
		Amount:         t.Amount,
		Classification: model.Classification(t.Classification),
	}, nil
}
