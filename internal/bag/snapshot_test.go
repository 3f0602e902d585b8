package bag

import (
	"encoding/json"
	"testing"

	"github.com/designdock/designdock-backend/pkg/db/models"
)

func TestSnapshotUnmarshalVariantForm(t *testing.T) {
	t.Parallel()

	var snapshot Snapshot
	err := json.Unmarshal([]byte(`{"p1":{"personal":2,"commercial":1}}`), &snapshot)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if snapshot["p1"][models.LicensePersonal] != 2 || snapshot["p1"][models.LicenseCommercial] != 1 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
}

func TestSnapshotUnmarshalLegacyForm(t *testing.T) {
	t.Parallel()

	var snapshot Snapshot
	if err := json.Unmarshal([]byte(`{"p1":3}`), &snapshot); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if snapshot["p1"][models.LicensePersonal] != 3 {
		t.Fatalf("legacy form should normalize to personal, got %+v", snapshot)
	}
}

func TestSnapshotUnmarshalDropsNonPositive(t *testing.T) {
	t.Parallel()

	var snapshot Snapshot
	if err := json.Unmarshal([]byte(`{"p1":0,"p2":{"personal":0},"p3":{"personal":1}}`), &snapshot); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(snapshot) != 1 {
		t.Fatalf("expected only p3 to survive, got %+v", snapshot)
	}
}

func TestSnapshotUnmarshalRejectsGarbage(t *testing.T) {
	t.Parallel()

	var snapshot Snapshot
	if err := json.Unmarshal([]byte(`{"p1":"two"}`), &snapshot); err == nil {
		t.Fatal("expected error for non-numeric quantity")
	}
}

func TestSnapshotAddIsPure(t *testing.T) {
	t.Parallel()

	original := Snapshot{"p1": {models.LicensePersonal: 1}}
	updated := original.Add("p1", models.LicensePersonal, 2)

	if original["p1"][models.LicensePersonal] != 1 {
		t.Fatalf("Add mutated the receiver: %+v", original)
	}
	if updated["p1"][models.LicensePersonal] != 3 {
		t.Fatalf("expected quantity 3, got %+v", updated)
	}
}

func TestSnapshotAddDefaultsLicense(t *testing.T) {
	t.Parallel()

	updated := Snapshot{}.Add("p1", "", 1)
	if updated["p1"][models.LicensePersonal] != 1 {
		t.Fatalf("empty license should default to personal, got %+v", updated)
	}
}

func TestSnapshotAdjustPrunesEmptyVariants(t *testing.T) {
	t.Parallel()

	snapshot := Snapshot{"p1": {models.LicensePersonal: 2}}
	updated := snapshot.Adjust("p1", models.LicensePersonal, 0)

	if _, ok := updated["p1"]; ok {
		t.Fatalf("product with no variants should be pruned, got %+v", updated)
	}
	if snapshot["p1"][models.LicensePersonal] != 2 {
		t.Fatalf("Adjust mutated the receiver: %+v", snapshot)
	}
}

func TestSnapshotAdjustKeepsOtherVariants(t *testing.T) {
	t.Parallel()

	snapshot := Snapshot{"p1": {models.LicensePersonal: 2, models.LicenseExtended: 1}}
	updated := snapshot.Adjust("p1", models.LicensePersonal, 5)

	if updated["p1"][models.LicensePersonal] != 5 || updated["p1"][models.LicenseExtended] != 1 {
		t.Fatalf("unexpected variants after adjust: %+v", updated)
	}
}

func TestSnapshotRemove(t *testing.T) {
	t.Parallel()

	snapshot := Snapshot{
		"p1": {models.LicensePersonal: 2, models.LicenseCommercial: 1},
		"p2": {models.LicensePersonal: 1},
	}
	updated := snapshot.Remove("p1")

	if _, ok := updated["p1"]; ok {
		t.Fatalf("expected p1 removed, got %+v", updated)
	}
	if updated.TotalItems() != 1 {
		t.Fatalf("expected one remaining item, got %d", updated.TotalItems())
	}
}
