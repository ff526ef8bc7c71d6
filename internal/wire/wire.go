// Package wire describes the client/server protocol: the gRPC method names
// of the sync backend, the mapping of records onto protobuf well-known
// types, and the change-feed event envelope.
package wire

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/herpsync/internal/common"
	"github.com/dmitrijs2005/herpsync/internal/record"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "herpsync.v1.SyncBackend"

// Full gRPC method names.
const (
	MethodPing         = "/" + ServiceName + "/Ping"
	MethodUpsert       = "/" + ServiceName + "/Upsert"
	MethodSoftDelete   = "/" + ServiceName + "/SoftDelete"
	MethodChangesSince = "/" + ServiceName + "/ChangesSince"
	MethodUpsertDevice = "/" + ServiceName + "/UpsertDevice"
)

// EncodeRecord maps r onto a Struct. Timestamps travel as RFC 3339 strings
// with nanoseconds.
func EncodeRecord(r *record.Record) (*structpb.Struct, error) {
	data, err := structpb.NewStruct(r.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: record %s data: %w", common.ErrValidation, r.ID, err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":         structpb.NewStringValue(r.ID),
		"owner_id":   structpb.NewStringValue(r.OwnerID),
		"data":       structpb.NewStructValue(data),
		"created_at": structpb.NewStringValue(formatTime(r.CreatedAt)),
		"updated_at": structpb.NewStringValue(formatTime(r.UpdatedAt)),
		"deleted":    structpb.NewBoolValue(r.Deleted),
	}}, nil
}

func DecodeRecord(s *structpb.Struct) (*record.Record, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: empty record", common.ErrValidation)
	}
	f := s.GetFields()

	r := &record.Record{
		ID:      f["id"].GetStringValue(),
		OwnerID: f["owner_id"].GetStringValue(),
		Deleted: f["deleted"].GetBoolValue(),
		Data:    f["data"].GetStructValue().AsMap(),
	}
	if r.ID == "" {
		return nil, fmt.Errorf("%w: record without id", common.ErrValidation)
	}
	var err error
	if r.CreatedAt, err = parseTime(f["created_at"].GetStringValue()); err != nil {
		return nil, fmt.Errorf("%w: record %s created_at: %w", common.ErrValidation, r.ID, err)
	}
	if r.UpdatedAt, err = parseTime(f["updated_at"].GetStringValue()); err != nil {
		return nil, fmt.Errorf("%w: record %s updated_at: %w", common.ErrValidation, r.ID, err)
	}
	return r, nil
}

// EncodeWrite builds the request of Upsert and SoftDelete.
func EncodeWrite(table string, r *record.Record) (*structpb.Struct, error) {
	rec, err := EncodeRecord(r)
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"table":  structpb.NewStringValue(table),
		"record": structpb.NewStructValue(rec),
	}}, nil
}

func DecodeWrite(s *structpb.Struct) (string, *record.Record, error) {
	table := s.GetFields()["table"].GetStringValue()
	if table == "" {
		return "", nil, fmt.Errorf("%w: table is required", common.ErrValidation)
	}
	r, err := DecodeRecord(s.GetFields()["record"].GetStructValue())
	if err != nil {
		return "", nil, err
	}
	return table, r, nil
}

// ChangesQuery is the request of ChangesSince.
type ChangesQuery struct {
	Table   string
	OwnerID string
	Since   time.Time
}

func EncodeChangesQuery(q ChangesQuery) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"table":    structpb.NewStringValue(q.Table),
		"owner_id": structpb.NewStringValue(q.OwnerID),
		"since":    structpb.NewStringValue(formatTime(q.Since)),
	}}
}

func DecodeChangesQuery(s *structpb.Struct) (ChangesQuery, error) {
	f := s.GetFields()
	q := ChangesQuery{
		Table:   f["table"].GetStringValue(),
		OwnerID: f["owner_id"].GetStringValue(),
	}
	if q.Table == "" || q.OwnerID == "" {
		return ChangesQuery{}, fmt.Errorf("%w: table and owner_id are required", common.ErrValidation)
	}
	since, err := parseTime(f["since"].GetStringValue())
	if err != nil {
		return ChangesQuery{}, fmt.Errorf("%w: since: %w", common.ErrValidation, err)
	}
	q.Since = since
	return q, nil
}

func EncodeRecords(list []*record.Record) (*structpb.ListValue, error) {
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(list))}
	for _, r := range list {
		s, err := EncodeRecord(r)
		if err != nil {
			return nil, err
		}
		out.Values = append(out.Values, structpb.NewStructValue(s))
	}
	return out, nil
}

func DecodeRecords(l *structpb.ListValue) ([]*record.Record, error) {
	out := make([]*record.Record, 0, len(l.GetValues()))
	for _, v := range l.GetValues() {
		r, err := DecodeRecord(v.GetStructValue())
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func EncodeDevice(d record.Device) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"device_id":    structpb.NewStringValue(d.DeviceID),
		"owner_id":     structpb.NewStringValue(d.OwnerID),
		"last_sync_at": structpb.NewStringValue(formatTime(d.LastSyncAt)),
		"sync_version": structpb.NewNumberValue(float64(d.SyncVersion)),
	}}
}

func DecodeDevice(s *structpb.Struct) (record.Device, error) {
	f := s.GetFields()
	d := record.Device{
		DeviceID:    f["device_id"].GetStringValue(),
		OwnerID:     f["owner_id"].GetStringValue(),
		SyncVersion: int64(f["sync_version"].GetNumberValue()),
	}
	if d.DeviceID == "" || d.OwnerID == "" {
		return record.Device{}, fmt.Errorf("%w: device_id and owner_id are required", common.ErrValidation)
	}
	at, err := parseTime(f["last_sync_at"].GetStringValue())
	if err != nil {
		return record.Device{}, fmt.Errorf("%w: last_sync_at: %w", common.ErrValidation, err)
	}
	d.LastSyncAt = at
	return d, nil
}

// Zero times are sent as empty strings.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
