package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/banshee-data/navfusion/internal/fusion"
)

// Record is the JSON form of one step, shared by JSON-lines files, the
// serial protocol and the monitor API:
//
//	{"dt":0.1,"ax":0,"ay":0,"az":0,"gps":{"x":1,"y":2,"z":3},"baro":3.1}
//
// The vector form {"accel":[0,0,0],"gps":[1,2,3]} is accepted as well.
// A missing or null gps/baro means no fix this step, and so does a gps
// fix with any null or missing component. A missing dt takes the
// configured default; missing acceleration components read as zero.
type Record struct {
	Dt    *float64
	Accel fusion.Vec3
	GPS   *fusion.Vec3
	Baro  *float64
}

// StepInput converts the record, filling dt from defaultDt when unset.
func (r Record) StepInput(defaultDt float64) fusion.StepInput {
	in := fusion.StepInput{
		Accel: r.Accel,
		Dt:    defaultDt,
		GPS:   r.GPS,
		Baro:  r.Baro,
	}
	if r.Dt != nil {
		in.Dt = *r.Dt
	}
	return in
}

// RecordFromStepInput is the inverse of Record.StepInput.
func RecordFromStepInput(in fusion.StepInput) Record {
	dt := in.Dt
	return Record{Dt: &dt, Accel: in.Accel, GPS: in.GPS, Baro: in.Baro}
}

type gpsObject struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
}

type wireRecord struct {
	Dt   *float64   `json:"dt,omitempty"`
	AX   float64    `json:"ax"`
	AY   float64    `json:"ay"`
	AZ   float64    `json:"az"`
	GPS  *gpsObject `json:"gps,omitempty"`
	Baro *float64   `json:"baro,omitempty"`
}

// MarshalJSON writes the ax/ay/az, gps{x,y,z} form.
func (r Record) MarshalJSON() ([]byte, error) {
	w := wireRecord{Dt: r.Dt, AX: r.Accel[0], AY: r.Accel[1], AZ: r.Accel[2], Baro: r.Baro}
	if r.GPS != nil {
		fix := *r.GPS
		w.GPS = &gpsObject{X: &fix[0], Y: &fix[1], Z: &fix[2]}
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts either record form and rejects unknown keys,
// vectors without exactly three components, and records that give the
// acceleration both ways.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		Dt    *float64        `json:"dt"`
		AX    *float64        `json:"ax"`
		AY    *float64        `json:"ay"`
		AZ    *float64        `json:"az"`
		Accel []*float64      `json:"accel"`
		GPS   json.RawMessage `json:"gps"`
		Baro  *float64        `json:"baro"`
	}
	if err := decodeStrict(data, &raw); err != nil {
		return err
	}

	out := Record{Dt: raw.Dt, Baro: raw.Baro}
	scalar := raw.AX != nil || raw.AY != nil || raw.AZ != nil
	switch {
	case raw.Accel != nil && scalar:
		return errors.New("acceleration given both as accel and as ax/ay/az")
	case raw.Accel != nil:
		if len(raw.Accel) != 3 {
			return fmt.Errorf("accel has %d components, want 3", len(raw.Accel))
		}
		out.Accel = fusion.Vec3{deref(raw.Accel[0]), deref(raw.Accel[1]), deref(raw.Accel[2])}
	default:
		out.Accel = fusion.Vec3{deref(raw.AX), deref(raw.AY), deref(raw.AZ)}
	}

	fix, err := decodeGPS(raw.GPS)
	if err != nil {
		return err
	}
	out.GPS = fix
	*r = out
	return nil
}

// decodeGPS returns nil for a missing or null fix and for a fix with any
// null or missing component, so a partial fix is never fused as zero.
func decodeGPS(data json.RawMessage) (*fusion.Vec3, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	var comps [3]*float64
	switch data[0] {
	case '[':
		var arr []*float64
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, fmt.Errorf("gps: %w", err)
		}
		if len(arr) != 3 {
			return nil, fmt.Errorf("gps has %d components, want 3", len(arr))
		}
		copy(comps[:], arr)
	case '{':
		var obj gpsObject
		if err := decodeStrict(data, &obj); err != nil {
			return nil, fmt.Errorf("gps: %w", err)
		}
		comps = [3]*float64{obj.X, obj.Y, obj.Z}
	default:
		return nil, fmt.Errorf("gps must be an object or an array, got %s", data)
	}

	var fix fusion.Vec3
	for i, c := range comps {
		if c == nil {
			return nil, nil
		}
		fix[i] = *c
	}
	return &fix, nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// ParseStepLine decodes one JSON-lines record.
func ParseStepLine(line []byte, defaultDt float64) (fusion.StepInput, error) {
	var r Record
	if err := json.Unmarshal(line, &r); err != nil {
		return fusion.StepInput{}, fmt.Errorf("decode step record: %w", err)
	}
	return r.StepInput(defaultDt), nil
}
