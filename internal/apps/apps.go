// Package apps assembles the action registry from every domain app.
package apps

import (
	"StoryAgent-Kit/internal/action"
	"StoryAgent-Kit/internal/apps/erc20"
	"StoryAgent-Kit/internal/apps/metapool"
	"StoryAgent-Kit/internal/apps/native"
)

// Actions returns the dispatch records of every app in registration order.
func Actions() []*action.Action {
	var all []*action.Action
	all = append(all, native.Actions()...)
	all = append(all, erc20.Actions()...)
	all = append(all, metapool.Actions()...)
	return all
}

// Register adds every app action to reg.
func Register(reg *action.Registry) error {
	return reg.Register(Actions()...)
}

// NewRegistry returns a registry holding every app action.
func NewRegistry() (*action.Registry, error) {
	reg := action.NewRegistry()
	if err := Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}
