package normalize

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

const (
	FacilityOriginPrefix = "facility_"
	DoctorOriginPrefix   = "doctor_"

	// OriginBodyMax caps the encoded part of an origin id.
	OriginBodyMax = 50

	originDigestLen = 12
)

// OriginID derives a stable source origin id from a raw name: the prefix
// followed by the unpadded URL-safe base64 of the name. Bodies longer than
// OriginBodyMax keep their leading characters and end in "." plus a
// sha256 digest prefix of the whole name, so long names sharing a prefix
// still differ. '.' is outside the base64url alphabet, so short and long
// forms never coincide.
func OriginID(prefix, raw string) string {
	body := base64.RawURLEncoding.EncodeToString([]byte(raw))
	if len(body) > OriginBodyMax {
		sum := sha256.Sum256([]byte(raw))
		body = body[:OriginBodyMax-originDigestLen-1] + "." + hex.EncodeToString(sum[:])[:originDigestLen]
	}
	return prefix + body
}

// FacilityOriginID derives the origin id of the facility promoted from a
// group key.
func FacilityOriginID(groupKey string) string {
	return OriginID(FacilityOriginPrefix, groupKey)
}

// DoctorOriginID derives the origin id of a newly created doctor.
func DoctorOriginID(name string) string {
	return OriginID(DoctorOriginPrefix, name)
}
