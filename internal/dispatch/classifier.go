// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: 2026
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dispatch

import "errors"

// ErrNoSourceIP is returned when an Event has no key to route on.
var ErrNoSourceIP = errors.New("dispatch: event missing source IP")

// Classify projects an Event onto a Channel. Rate increments are the only
// mergeable fact the pipeline produces; every other kind is order-sensitive
// and always routes to the Vector lane.
func Classify(ev Event) (Channel, error) {
	if ev.SourceIP == "" {
		return ChannelVector, ErrNoSourceIP
	}
	if ev.Kind == KindRateIncrement {
		return ChannelScalar, nil
	}
	return ChannelVector, nil
}
