/*
 * Tencent is pleased to support the open source community by making TKEStack available.
 *
 * Copyright (C) 2012-2019 Tencent. All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you may not use
 * this file except in compliance with the License. You may obtain a copy of the
 * License at
 *
 * https://opensource.org/licenses/Apache-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
 * WARRANTIES OF ANY KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations under the License.
 */

package sequence

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// SQL is a Store backed by sequence tables, every table holds one row with an "id" column
type SQL struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

// NewSQL return a SQL Source using db
func NewSQL(db *sqlx.DB) *SQL {
	format := sq.PlaceholderFormat(sq.Question)
	if sqlx.BindType(db.DriverName()) == sqlx.DOLLAR {
		format = sq.Dollar
	}
	return &SQL{db: db, sb: sq.StatementBuilder.PlaceholderFormat(format)}
}

// Create create sequence table name starting at start if it does not exist
func (s *SQL) Create(ctx context.Context, name string, start int64) error {
	if err := checkName(name); err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id BIGINT NOT NULL)", name)); err != nil {
		return errors.Wrapf(err, "create sequence %s", name)
	}

	query, args, err := s.sb.Select("COUNT(*)").From(name).ToSql()
	if err != nil {
		return err
	}

	var n int
	if err := tx.GetContext(ctx, &n, query, args...); err != nil {
		return errors.Wrapf(err, "count sequence %s", name)
	}

	if n == 0 {
		query, args, err := s.sb.Insert(name).Columns("id").Values(start).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return errors.Wrapf(err, "init sequence %s", name)
		}
	}
	return tx.Commit()
}

// CurrentSequenceValue return the current value of sequence name
func (s *SQL) CurrentSequenceValue(ctx context.Context, name string) (int64, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}
	return s.current(ctx, s.db, name)
}

// Next increase sequence name by one and return the new value
func (s *SQL) Next(ctx context.Context, name string) (int64, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.Wrapf(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := s.sb.Update(name).Set("id", sq.Expr("id + 1")).ToSql()
	if err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "increase sequence %s", name)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return 0, errors.Wrapf(ErrUnknownSequence, "sequence %s is empty", name)
	}

	v, err := s.current(ctx, tx, name)
	if err != nil {
		return 0, err
	}
	return v, tx.Commit()
}

func (s *SQL) current(ctx context.Context, q sqlx.QueryerContext, name string) (int64, error) {
	query, args, err := s.sb.Select("id").From(name).ToSql()
	if err != nil {
		return 0, err
	}

	var v int64
	err = sqlx.GetContext(ctx, q, &v, query, args...)
	if err == sql.ErrNoRows {
		return 0, errors.Wrapf(ErrUnknownSequence, "sequence %s is empty", name)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "read sequence %s", name)
	}
	return v, nil
}

func checkName(name string) error {
	if !identPattern.MatchString(name) {
		return errors.Wrapf(ErrInvalidName, "%q", name)
	}
	return nil
}
