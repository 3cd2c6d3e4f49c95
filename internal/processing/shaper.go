package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/DeafMist/transcript-ocr/internal/models"
)

// PDDiktiSearchURL is prefixed to the student number to build the lookup link.
const PDDiktiSearchURL = "https://pddikti.kemdikbud.go.id/api/pencarian/mhs/"

// Entity types produced by the transcript processor.
const (
	FieldNIM          = "nim"
	FieldNama         = "nama"
	FieldIPK          = "ipk"
	FieldUniv         = "univ"
	FieldFakultas     = "fakultas"
	FieldProgramStudi = "program_studi"
	FieldPendidikan   = "pendidikan"
)

var sanitizers = map[string]*strings.Replacer{
	FieldIPK:  strings.NewReplacer("-", "", "=", "", ":", ""),
	FieldUniv: strings.NewReplacer(`\`, ""),
	FieldNIM:  strings.NewReplacer("/", ""),
}

// EntityBag indexes entities by type. A repeated type keeps its last mention.
func EntityBag(entities []models.Entity) map[string]string {
	bag := make(map[string]string, len(entities))
	for _, e := range entities {
		bag[e.Type] = e.MentionText
	}
	return bag
}

// Sanitize strips OCR noise from the fields known to pick it up.
func Sanitize(bag map[string]string) {
	for field, r := range sanitizers {
		if v := bag[field]; v != "" {
			bag[field] = r.Replace(v)
		}
	}
}

// Shape turns extracted entities into a transcript. Missing fields stay empty
// and TimeElapsed is left for the caller, who owns the clock.
func Shape(entities []models.Entity) models.Transcript {
	bag := EntityBag(entities)
	Sanitize(bag)

	return models.Transcript{
		NIM:          bag[FieldNIM],
		Nama:         bag[FieldNama],
		IPK:          bag[FieldIPK],
		Univ:         bag[FieldUniv],
		Fakultas:     bag[FieldFakultas],
		ProgramStudi: bag[FieldProgramStudi],
		Pendidikan:   bag[FieldPendidikan],
		PDDikti:      PDDiktiSearchURL + bag[FieldNIM],
	}
}

// FormatElapsed renders d as seconds rounded to milliseconds, always with a
// fractional part ("0.5", "2.0", "1.234").
func FormatElapsed(d time.Duration) string {
	secs := math.Round(d.Seconds()*1000) / 1000
	if secs <= 0 {
		return "0.0"
	}
	out := strconv.FormatFloat(secs, 'f', -1, 64)
	if !strings.Contains(out, ".") {
		out += ".0"
	}
	return out
}

// ContentHash fingerprints uploaded bytes; identical files share an ID.
func ContentHash(data []byte) string {
	s := sha1.Sum(data)
	return hex.EncodeToString(s[:])
}
