// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

package eventbus

import "context"

// Bus fans panel messages out to every connected panel client.
type Bus interface {
	// Publish delivers payload to the topic's subscribers and returns how
	// many received it. Slow subscribers are skipped, not waited on.
	Publish(ctx context.Context, topic string, payload any) (int, error)
	Subscribe(topic string, ch chan<- any) (unsubscribe func(), err error)
	Subscribers(topic string) int
}
