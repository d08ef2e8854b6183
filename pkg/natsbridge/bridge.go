// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package natsbridge connects the in-process MsgQ fabric to the outside
// world over NATS. SlideRule's MsgQ queues are deliberately intra-process
// (no network transport built into the queue itself); natsbridge is the
// external collaborator spec.md's consumer/producer interfaces describe,
// grounded on pkg/nats/client.go's connection handling and
// pkg/nats/influxDecoder.go's line-protocol decoding.
package natsbridge

import (
	"context"
	"fmt"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	influx "github.com/influxdata/line-protocol/v2/lineprotocol"
	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/sliderule-earth/sliderule-core/pkg/msgq"
	"github.com/sliderule-earth/sliderule-core/pkg/recordobject"
)

// Bridge owns one NATS connection and any number of import subscriptions
// and export pumps started against it.
type Bridge struct {
	c        *conn
	registry *msgq.Registry // nil means the package-level global registry

	cancel context.CancelFunc
}

// NewBridge dials addr and returns a Bridge ready for ImportSubject and
// ExportQueue calls. registry may be nil to use msgq's global registry.
func NewBridge(cfg Config, registry *msgq.Registry) (*Bridge, error) {
	c, err := dial(cfg)
	if err != nil {
		return nil, err
	}
	return &Bridge{c: c, registry: registry}, nil
}

func (b *Bridge) publish(name string) (*msgq.Publisher, error) {
	if b.registry != nil {
		return b.registry.Publish(name)
	}
	return msgq.Publish(name)
}

func (b *Bridge) subscribe(name string, kind msgq.SubscriberType) (*msgq.Subscriber, error) {
	if b.registry != nil {
		return b.registry.Subscribe(name, kind)
	}
	return msgq.Subscribe(name, kind)
}

// ImportSubject subscribes to subject and posts every message it receives
// to queueName by reference. A message is first tried as a raw
// RecordObject wire buffer (recordobject.FromBuffer); if that fails, it is
// decoded as a single InfluxDB line-protocol line and packed into a fresh
// record of the named type, matching tag and field names against the
// definition's own field names and skipping anything the definition does
// not declare. This is the "reader/producer" half of the bridge.
func (b *Bridge) ImportSubject(subject, queueName, typeName string) error {
	pub, err := b.publish(queueName)
	if err != nil {
		return fmt.Errorf("natsbridge: preparing publisher for %q: %w", queueName, err)
	}

	handler := func(msg *nats.Msg) {
		wire, err := decodeMessage(msg.Data, typeName)
		if err != nil {
			cclog.Warnf("natsbridge: dropping message on %q: %v", subject, err)
			return
		}
		if _, err := pub.Post(wire, 0); err != nil {
			cclog.Warnf("natsbridge: posting to %q: %v", queueName, err)
		}
	}

	return b.c.subscribe(subject, handler)
}

// decodeMessage turns one NATS payload into a serialized record buffer,
// trying the raw wire format first and falling back to line-protocol
// decoding against typeName's registered Definition.
func decodeMessage(data []byte, typeName string) ([]byte, error) {
	if _, err := recordobject.FromBuffer(data, false); err == nil {
		return data, nil
	}

	def, err := recordobject.GetDefinition(typeName)
	if err != nil {
		return nil, fmt.Errorf("looking up definition %q: %w", typeName, err)
	}

	dec := influx.NewDecoderWithBytes(data)
	rec, err := decodeLineProtocol(dec, def)
	if err != nil {
		return nil, fmt.Errorf("decoding line-protocol payload: %w", err)
	}

	return rec.Serialize(recordobject.Allocate, -1, nil)
}

// decodeLineProtocol reads one line-protocol line off d and packs its tags
// and fields into a fresh record of def, matching by field name.
// Unrecognized tag/field keys are ignored; recognized ones are coerced by
// the target field's declared type.
func decodeLineProtocol(d *influx.Decoder, def *recordobject.Definition) (*recordobject.Record, error) {
	if _, err := d.Measurement(); err != nil {
		return nil, fmt.Errorf("reading measurement: %w", err)
	}

	rec, err := recordobject.New(def, 0)
	if err != nil {
		return nil, err
	}

	for {
		key, value, err := d.NextTag()
		if err != nil {
			return nil, fmt.Errorf("reading tag: %w", err)
		}
		if key == nil {
			break
		}
		if _, ok := def.Field(string(key)); ok {
			if err := rec.SetValueText(string(key), string(value)); err != nil {
				return nil, fmt.Errorf("setting tag %q: %w", key, err)
			}
		}
	}

	for {
		key, value, err := d.NextField()
		if err != nil {
			return nil, fmt.Errorf("reading field: %w", err)
		}
		if key == nil {
			break
		}
		spec, ok := def.Field(string(key))
		if !ok {
			continue
		}
		if err := setFieldValue(rec, spec, string(key), value); err != nil {
			return nil, err
		}
	}

	ts, err := d.Time(influx.Nanosecond, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("reading timestamp: %w", err)
	}
	if _, ok := def.Field("time"); ok && !ts.IsZero() {
		if err := rec.SetValueInteger("time", ts.UnixNano()); err != nil {
			return nil, fmt.Errorf("setting time field: %w", err)
		}
	}

	return rec, nil
}

func setFieldValue(rec *recordobject.Record, spec recordobject.FieldSpec, name string, value influx.Value) error {
	switch spec.Type {
	case recordobject.FloatType, recordobject.DoubleType:
		f, ok := value.FloatV()
		if !ok {
			return fmt.Errorf("natsbridge: field %q is not numeric in line-protocol payload", name)
		}
		return rec.SetValueReal(name, f)
	case recordobject.StringType:
		return rec.SetValueText(name, fmt.Sprintf("%v", value.Interface()))
	default:
		switch v := value.Interface().(type) {
		case int64:
			return rec.SetValueInteger(name, v)
		case uint64:
			return rec.SetValueInteger(name, int64(v))
		case bool:
			if v {
				return rec.SetValueInteger(name, 1)
			}
			return rec.SetValueInteger(name, 0)
		case float64:
			return rec.SetValueInteger(name, int64(v))
		default:
			return fmt.Errorf("natsbridge: field %q has unsupported line-protocol value type %T", name, v)
		}
	}
}

// ExportQueue attaches an Opportunity subscriber to queueName and
// republishes every record it receives, serialized as-is, to subject. The
// pump is rate-limited so a slow or unreachable NATS server cannot itself
// become a second source of back-pressure beyond what the queue already
// applies to its own subscribers; an Opportunity subscriber means a stalled
// export pump drops messages rather than blocking producers.
func (b *Bridge) ExportQueue(ctx context.Context, queueName, subject string, limit rate.Limit, burst int) error {
	sub, err := b.subscribe(queueName, msgq.Opportunity)
	if err != nil {
		return fmt.Errorf("natsbridge: subscribing to %q: %w", queueName, err)
	}

	limiter := rate.NewLimiter(limit, burst)

	ctx, cancel := context.WithCancel(ctx)
	if prev := b.cancel; prev != nil {
		b.cancel = func() { prev(); cancel() }
	} else {
		b.cancel = cancel
	}

	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			data, state, err := sub.Receive(100 * time.Millisecond)
			if err != nil {
				cclog.Errorf("natsbridge: receiving from %q: %v", queueName, err)
				return
			}
			if state != msgq.StateOK {
				continue
			}

			if err := limiter.Wait(ctx); err != nil {
				return
			}
			if err := b.c.publish(subject, data); err != nil {
				cclog.Warnf("natsbridge: publishing to %q: %v", subject, err)
			}
		}
	}()

	return nil
}

// Close stops any running export pump and closes the NATS connection.
func (b *Bridge) Close() {
	if b.cancel != nil {
		b.cancel()
	}
	b.c.close()
}
