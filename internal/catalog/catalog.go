// Package catalog loads case definitions from YAML into the case store.
package catalog

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vytor/simclinic/internal/errors"
	"github.com/vytor/simclinic/internal/logger"
	"github.com/vytor/simclinic/internal/models"
	"github.com/vytor/simclinic/internal/repository"
	"github.com/vytor/simclinic/internal/services"
)

type document struct {
	Cases []models.Case `yaml:"cases"`
}

// Parse decodes a case document and checks that every case can run a
// simulation. All problems are reported together, keyed by case position.
func Parse(data []byte) ([]models.Case, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.NewBadRequestError(fmt.Sprintf("parse case catalog: %v", err))
	}
	if len(doc.Cases) == 0 {
		return nil, errors.NewValidationError("cases", "at least one case is required")
	}

	problems := map[string]string{}
	seen := make(map[string]int, len(doc.Cases))
	for i, c := range doc.Cases {
		key := fmt.Sprintf("cases[%d]", i)
		if strings.TrimSpace(c.ID) == "" {
			problems[key+".id"] = "is required"
			continue
		}
		if prev, dup := seen[c.ID]; dup {
			problems[key+".id"] = fmt.Sprintf("duplicates cases[%d]", prev)
			continue
		}
		seen[c.ID] = i
		if c.PassThreshold < 0 || c.PassThreshold > 100 {
			problems[key+".pass_threshold"] = "must be between 0 and 100"
		}
		if err := services.CheckCase(c); err != nil {
			if appErr, ok := errors.As(err); ok {
				problems[key] = appErr.Message
			} else {
				problems[key] = err.Error()
			}
		}
	}
	if len(problems) > 0 {
		return nil, errors.NewFieldsValidationError("invalid case catalog", problems)
	}
	return doc.Cases, nil
}

// Import upserts every case and returns how many were written.
func Import(ctx context.Context, repo repository.CaseRepository, cases []models.Case) (int, error) {
	log := logger.FromContext(ctx).WithPrefix("catalog")
	for i, c := range cases {
		if err := repo.Upsert(ctx, c); err != nil {
			log.Error("failed to upsert case %s: %v", c.ID, err)
			return i, errors.NewInternalError(err)
		}
		log.Debug("upserted case %s", c.ID)
	}
	log.Info("imported %d cases", len(cases))
	return len(cases), nil
}
