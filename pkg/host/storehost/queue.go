/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package storehost

import (
	"context"
	"errors"

	"github.com/trustbloc/federation/pkg/entity"
	"github.com/trustbloc/federation/pkg/receiver"
)

var errQueueFull = errors.New("receive queue is full")

// QueuePublicReceive queues a public envelope for the receive workers.
func (h *Host) QueuePublicReceive(data []byte) error {
	return h.enqueue(job{data: data})
}

// QueuePrivateReceive queues an encrypted envelope for a local recipient.
// It returns false if the recipient is not a local person.
func (h *Host) QueuePrivateReceive(recipientGUID string, data []byte) (bool, error) {
	p, err := h.PersonByGUID(recipientGUID)
	if err != nil {
		return false, err
	}

	if p == nil || !p.Local() {
		return false, nil
	}

	return true, h.enqueue(job{recipientID: recipientGUID, data: data})
}

func (h *Host) enqueue(j job) error {
	select {
	case h.queue <- j:
		return nil
	default:
		return errQueueFull
	}
}

// Start runs the receive workers until ctx is done.
func (h *Host) Start(ctx context.Context) {
	workers := h.cfg.ReceiveWorkers
	if workers < 1 {
		workers = 1
	}

	for i := 0; i < workers; i++ {
		h.wg.Add(1)

		go h.work(ctx)
	}

	logger.Infof("Started %d receive workers", workers)
}

// Wait blocks until the receive workers started by Start have stopped.
func (h *Host) Wait() {
	h.wg.Wait()
}

func (h *Host) work(ctx context.Context) {
	defer h.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-h.queue:
			h.receive(ctx, j)
		}
	}
}

// receive runs one queued envelope through a receiver. The receiver logs its own failures.
func (h *Host) receive(ctx context.Context, j job) {
	var r *receiver.Receiver

	if j.recipientID == "" {
		r = receiver.NewPublic(j.data, h, h.receiverOpts...)
	} else {
		r = receiver.NewPrivate(j.data, j.recipientID, h, h.receiverOpts...)
	}

	if err := r.Receive(); err != nil {
		return
	}

	post, ok := r.Entity().(*entity.StatusMessage)
	if !ok || h.resolver == nil {
		return
	}

	if failed := h.resolver.ResolveReferences(ctx, r.Sender(), post.Text); len(failed) > 0 {
		logger.Infof("%d references in %s %s could not be resolved", len(failed), post.Type(), post.GUID())
	}
}
