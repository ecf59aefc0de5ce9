// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package shardrun defines the data model shared by every component of the
// shardrun control plane: task and run identities, the wire messages the
// Master and its workers exchange, and the contracts the kernel, table,
// transport, and exec packages build on.
//
// shardrun itself never talks to a network or schedules anything; it is the
// vocabulary the rest of the module shares so that none of its packages
// needs to import another just to agree on a message shape.
package shardrun
