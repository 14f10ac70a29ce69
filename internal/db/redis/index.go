package redis

import (
	"context"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/habita-labs/habita/internal/db"
)

// CreateIndex creates an FT index from the given definition.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	args := buildCreateArgs(def)

	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

// DropIndex removes an FT index by name.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	cmd := s.b().Arbitrary("FT.DROPINDEX").Args(name).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index name") {
			return db.ErrIndexNotFound
		}
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}
	return nil
}

// IndexExists probes index existence via FT.INFO; "unknown index name"
// means absent.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(name).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index name") {
			return false, nil
		}
		return false, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	return true, nil
}

// IndexInfo fetches FT.INFO and extracts the vector attribute's DIM.
// Servers that omit per-attribute parameters yield a zero VectorDim.
func (s *Store) IndexInfo(ctx context.Context, name string) (*db.IndexInfo, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(name).Build()
	entries, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isRedisErr(err, "unknown index name") {
			return nil, db.ErrIndexNotFound
		}
		return nil, &db.Error{Op: db.OpIndexInfo, Err: err}
	}

	info := &db.IndexInfo{}
	for i := 0; i+1 < len(entries); i += 2 {
		key, err := entries[i].ToString()
		if err != nil || key != "attributes" {
			continue
		}
		attrs, err := entries[i+1].ToArray()
		if err != nil {
			continue
		}
		for _, attr := range attrs {
			fields, err := attr.ToArray()
			if err != nil {
				continue
			}
			if dim, ok := vectorDim(fields); ok {
				info.VectorDim = dim
			}
		}
	}
	return info, nil
}

// vectorDim scans one flat attribute key-value array for a VECTOR type and
// its dim parameter.
func vectorDim(fields []rueidis.RedisMessage) (int, bool) {
	isVector := false
	dim := 0
	for i := 0; i+1 < len(fields); i += 2 {
		key, err := fields[i].ToString()
		if err != nil {
			continue
		}
		switch key {
		case "type":
			if v, err := fields[i+1].ToString(); err == nil && v == "VECTOR" {
				isVector = true
			}
		case "dim":
			if v, err := fields[i+1].AsInt64(); err == nil {
				dim = int(v)
			} else if raw, err := fields[i+1].ToString(); err == nil {
				if n, convErr := strconv.Atoi(raw); convErr == nil {
					dim = n
				}
			}
		}
	}
	return dim, isVector && dim > 0
}

func buildCreateArgs(idx *db.IndexDefinition) []string {
	args := []string{idx.Name, "ON", "HASH"}

	if len(idx.Prefixes) > 0 {
		args = append(args, "PREFIX", strconv.Itoa(len(idx.Prefixes)))
		args = append(args, idx.Prefixes...)
	}

	args = append(args, "SCHEMA")

	for i := range idx.Fields {
		args = append(args, buildFieldArgs(&idx.Fields[i])...)
	}

	return args
}

func buildFieldArgs(f *db.IndexField) []string {
	args := []string{f.Name}

	switch f.Type {
	case db.IndexFieldNumeric:
		args = append(args, "NUMERIC")

	case db.IndexFieldTag:
		args = append(args, "TAG")

	case db.IndexFieldVector:
		m := f.VectorM
		if m <= 0 {
			m = 16
		}
		efConstruct := f.VectorEFConstruct
		if efConstruct <= 0 {
			efConstruct = 200
		}
		distance := f.VectorDistance
		if distance == "" {
			distance = db.DistanceCosine
		}
		args = append(args,
			"VECTOR", "HNSW", "10",
			"TYPE", "FLOAT32",
			"DIM", strconv.Itoa(f.VectorDim),
			"DISTANCE_METRIC", string(distance),
			"M", strconv.Itoa(m),
			"EF_CONSTRUCTION", strconv.Itoa(efConstruct),
		)
	}

	return args
}
