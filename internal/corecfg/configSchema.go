// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package corecfg

var configSchema = `
	{
  "type": "object",
  "properties": {
    "standard_queue_depth": {
      "description": "Ring depth a msgq queue is created with when a caller does not request one explicitly.",
      "type": "integer",
      "minimum": 1
    },
    "io_timeout_ms": {
      "description": "Stored in Keys.IOTimeoutMS, in milliseconds. msgq Post/Receive calls take an explicit timeout and do not read it.",
      "type": "integer",
      "minimum": 0
    },
    "io_maxsize": {
      "description": "Stored in Keys.IOMaxSize, in bytes. msgq Post does not check message size against it.",
      "type": "integer",
      "minimum": 1
    },
    "nats": {
      "description": "Configuration for the optional NATS import/export bridge.",
      "type": "object",
      "properties": {
        "address": { "type": "string" },
        "username": { "type": "string" },
        "password": { "type": "string" },
        "creds_file_path": { "type": "string" }
      }
    },
    "dispatcher": {
      "description": "Stored in Keys.Dispatcher. The sliderule-core command copies num_workers and queue_depth into its RecordDispatcher's Config; tick_period_ms is not passed on.",
      "type": "object",
      "properties": {
        "num_workers": {
          "type": "integer",
          "minimum": 1
        },
        "tick_period_ms": {
          "type": "integer",
          "minimum": 0
        },
        "queue_depth": {
          "type": "integer",
          "minimum": 1
        }
      }
    }
  },
  "required": ["standard_queue_depth", "io_timeout_ms", "io_maxsize"]
}`
