// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

package processor // import "github.com/telepipe/telepipe/internal/processor"

import (
	"errors"
	"fmt"

	"github.com/telepipe/telepipe/internal/model"
)

// ActionType enumerates the attribute rewrite operations.
type ActionType string

const (
	// ActionInsert sets the key only when it is absent.
	ActionInsert ActionType = "insert"
	// ActionUpdate sets the key only when it is already present.
	ActionUpdate ActionType = "update"
	// ActionUpsert sets the key unconditionally.
	ActionUpsert ActionType = "upsert"
	// ActionDelete removes the key when present.
	ActionDelete ActionType = "delete"
)

// Action is one declarative attribute rewrite rule. Rules are pure
// functions of a record and are applied in declaration order.
type Action struct {
	Key   string
	Type  ActionType
	Value any
}

// Validate rejects malformed rules at configuration load time.
func (a Action) Validate() error {
	if a.Key == "" {
		return errors.New("action key must not be empty")
	}
	switch a.Type {
	case ActionInsert, ActionUpdate, ActionUpsert:
		if a.Value == nil {
			return fmt.Errorf("action %q on key %q requires a value", a.Type, a.Key)
		}
	case ActionDelete:
		if a.Value != nil {
			return fmt.Errorf("action delete on key %q must not carry a value", a.Key)
		}
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return nil
}

type transformStage struct {
	actions []Action
}

// NewTransformStage builds the attribute transformation stage. Actions
// must have been validated already.
func NewTransformStage(actions []Action) Stage {
	return &transformStage{actions: actions}
}

func (s *transformStage) Name() string {
	return "transform"
}

func (s *transformStage) ProcessRecord(rec *model.Record) error {
	for _, a := range s.actions {
		switch a.Type {
		case ActionInsert:
			if rec.Attributes == nil {
				rec.Attributes = map[string]any{}
			}
			if _, ok := rec.Attributes[a.Key]; !ok {
				rec.Attributes[a.Key] = a.Value
			}
		case ActionUpdate:
			if _, ok := rec.Attributes[a.Key]; ok {
				rec.Attributes[a.Key] = a.Value
			}
		case ActionUpsert:
			if rec.Attributes == nil {
				rec.Attributes = map[string]any{}
			}
			rec.Attributes[a.Key] = a.Value
		case ActionDelete:
			delete(rec.Attributes, a.Key)
		default:
			return fmt.Errorf("unknown action type %q", a.Type)
		}
	}
	return nil
}
