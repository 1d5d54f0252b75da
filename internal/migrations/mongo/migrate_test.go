package mongo

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	campaignrepo "masjid/internal/campaigns/repository"
	ledgerrepo "masjid/internal/ledger/repository"
)

func TestCollections_CoverLedgerStores(t *testing.T) {
	defs := Collections()

	for _, name := range []string{
		ledgerrepo.DatesCollection,
		campaignrepo.CampaignsCollection,
		ledgerrepo.ReconciliationsCollection,
	} {
		def, ok := defs[name]
		if !ok {
			t.Fatalf("missing collection %s", name)
		}
		if len(def.Indexes) == 0 {
			t.Errorf("%s has no indexes", name)
		}
		if _, ok := def.Validator["$jsonSchema"]; !ok {
			t.Errorf("%s has no JSON schema", name)
		}
	}
}

func TestReconciliationsIndexes_DedupeByDateAndIntent(t *testing.T) {
	first := ReconciliationsIndexes[0]
	keys, ok := first.Keys.(bson.D)
	if !ok || len(keys) != 2 || keys[0].Key != "date_id" || keys[1].Key != "payment_intent_id" {
		t.Fatalf("unexpected keys %v", first.Keys)
	}
	if first.Options == nil || first.Options.Unique == nil || !*first.Options.Unique {
		t.Error("reconciliation index must be unique")
	}
}
