package postgres

import (
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/resilience"
)

func TestMigrationsArePaired(t *testing.T) {
	sub, err := Migrations()
	if err != nil {
		t.Fatal(err)
	}
	entries, err := fs.ReadDir(sub, ".")
	if err != nil {
		t.Fatal(err)
	}

	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	if ups == 0 || ups != downs {
		t.Fatalf("expected paired migrations, got %d up / %d down", ups, downs)
	}

	b, err := fs.ReadFile(sub, "000001_create_impot_constantes.up.sql")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "PRIMARY KEY (code, annee_fiscale)") {
		t.Error("constants table must be keyed by code and fiscal year")
	}
}

func TestDecodeRecord(t *testing.T) {
	r, err := decodeRecord("IRF", "Impôt sur les revenus fonciers", "reel", 2025,
		[]byte(`[{"code":"TAUX_NORMAL","valeur":0.12}]`), true)
	if err != nil {
		t.Fatal(err)
	}
	if r.Code != domain.TaxIRF || r.Kind != domain.KindReel || len(r.Constants) != 1 {
		t.Fatalf("unexpected record %+v", r)
	}

	empty, err := decodeRecord("TVM", "", "autre", 2025, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if empty.Constants == nil {
		t.Error("constants should never be nil")
	}
}

func TestDecodeRecord_BadJSONIsPermanent(t *testing.T) {
	_, err := decodeRecord("IS", "", "reel", 2025, []byte(`{`), true)
	if err == nil {
		t.Fatal("expected error")
	}
	if !resilience.IsPermanent(err) {
		t.Errorf("decode errors should not be retried: %v", err)
	}
	var nf *domain.ErrNotFound
	if errors.As(err, &nf) {
		t.Error("decode error is not a miss")
	}
}

func TestNewRecordDefaults(t *testing.T) {
	r := newRecord(domain.TaxTPS, 2025)
	if !r.Active || r.Kind != domain.KindOther || r.Name != "TPS" {
		t.Fatalf("unexpected defaults %+v", r)
	}
}
