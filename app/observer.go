package app

import (
	"context"
	"time"

	"github.com/artpar/apicore/ports"
)

type nopObserver struct{}

func (nopObserver) ObserveCall(string, string, time.Duration) {}
func (nopObserver) ObserveCache(string, bool)                 {}
func (nopObserver) ObserveRetry(string)                       {}
func (nopObserver) ObservePersistence(bool)                   {}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, ports.Notification) {}
