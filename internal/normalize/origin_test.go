package normalize

import (
	"strings"
	"testing"

	"github.com/sigls/facload/internal/model"
)

func rawRowFixture() model.RawRow {
	return model.RawRow{
		SourceID:      "a-1",
		FacilityName:  strPtr(" ubs  central"),
		DoctorName:    strPtr("Dr. Ana Souza"),
		SpecialtyName: strPtr("  "),
	}
}

func TestOriginID_Short(t *testing.T) {
	id := FacilityOriginID("UBS CENTRAL")
	if id != "facility_VUJTIENFTlRSQUw" {
		t.Errorf("FacilityOriginID = %q", id)
	}
	if FacilityOriginID("UBS CENTRAL") != id {
		t.Error("origin id must be a pure function of the name")
	}
	if DoctorOriginID("UBS CENTRAL") == id {
		t.Error("doctor and facility ids must be namespaced apart")
	}
}

func TestOriginID_LongNamesKeepDistinctDigests(t *testing.T) {
	prefix := "UNIDADE BASICA DE SAUDE DOUTOR JOAO BATISTA DE "
	a := FacilityOriginID(prefix + "ALMEIDA")
	b := FacilityOriginID(prefix + "OLIVEIRA")

	for _, id := range []string{a, b} {
		body := strings.TrimPrefix(id, FacilityOriginPrefix)
		if len(body) != OriginBodyMax {
			t.Errorf("body length = %d, want %d (%s)", len(body), OriginBodyMax, id)
		}
		if !strings.Contains(body, ".") {
			t.Errorf("long body should carry a digest suffix: %s", id)
		}
	}
	if a == b {
		t.Errorf("names sharing a long prefix collided: %s", a)
	}
}
