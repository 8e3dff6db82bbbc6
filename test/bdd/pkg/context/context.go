/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package context

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gorilla/mux"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trustbloc/federation/pkg/client"
	"github.com/trustbloc/federation/pkg/config"
	"github.com/trustbloc/federation/pkg/delivery"
	"github.com/trustbloc/federation/pkg/host/storehost"
	"github.com/trustbloc/federation/pkg/restapi"
	"github.com/trustbloc/federation/pkg/restapi/operation"
)

const testKeySize = 2048

// Pod is a federation server running in-process on a local port.
type Pod struct {
	Name   string
	Host   *storehost.Host
	Client *client.Client
	Sender *delivery.Sender
	Server *httptest.Server

	cancel  context.CancelFunc
	handler http.Handler
	mutex   sync.RWMutex
}

// URL returns the base URL of the pod, with a trailing slash.
func (p *Pod) URL() string {
	return p.Server.URL + "/"
}

// ServeHTTP forwards to the REST router once the pod is set up.
func (p *Pod) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mutex.RLock()
	handler := p.handler
	p.mutex.RUnlock()

	if handler == nil {
		http.Error(w, "pod is starting", http.StatusServiceUnavailable)

		return
	}

	handler.ServeHTTP(w, req)
}

// Close stops the pod's workers and server.
func (p *Pod) Close() {
	p.cancel()
	p.Host.Wait()
	p.Server.Close()
}

// BDDContext is a global context shared between the different test suites in bddtests.
type BDDContext struct {
	Pods map[string]*Pod
	Args map[string]string
}

// NewBDDContext creates a new BDD context.
func NewBDDContext() *BDDContext {
	return &BDDContext{
		Pods: make(map[string]*Pod),
		Args: make(map[string]string),
	}
}

// StartPod starts a pod with an in-memory database. A running pod with the same name is stopped first.
func (b *BDDContext) StartPod(name string) (*Pod, error) {
	if existing, ok := b.Pods[name]; ok {
		existing.Close()
	}

	pod := &Pod{Name: name}
	pod.Server = httptest.NewServer(pod)

	cfg := config.Default()
	cfg.ServerURI = pod.Server.URL
	cfg.ReceiveWorkers = 2

	httpClient, err := client.NewHTTPClient(cfg)
	if err != nil {
		pod.Server.Close()

		return nil, err
	}

	pod.Client = client.New(client.WithHTTPClient(httpClient), client.WithScheme("http"))

	pod.Host, err = storehost.New(mem.NewProvider(), cfg, pod.Client,
		storehost.WithDiscoverer(pod.Client),
		storehost.WithKeySize(testKeySize))
	if err != nil {
		pod.Server.Close()

		return nil, fmt.Errorf("failed to create host of pod %s: %w", name, err)
	}

	pod.Sender = delivery.New(pod.Client, pod.Host, cfg.MaxConcurrency)

	service, err := restapi.New(&operation.Config{
		Host:      pod.Host,
		Codec:     pod.Host.Codec(),
		ServerURL: cfg.ServerURL(),
		Gatherer:  prometheus.NewRegistry(),
	})
	if err != nil {
		pod.Server.Close()

		return nil, err
	}

	router := mux.NewRouter()
	router.UseEncodedPath()

	for _, handler := range service.GetOperations() {
		router.HandleFunc(handler.Path(), handler.Handle()).Methods(handler.Method())
	}

	var ctx context.Context

	ctx, pod.cancel = context.WithCancel(context.Background())
	pod.Host.Start(ctx)

	pod.mutex.Lock()
	pod.handler = router
	pod.mutex.Unlock()

	b.Pods[name] = pod

	return pod, nil
}

// Pod returns the running pod with the given name.
func (b *BDDContext) Pod(name string) (*Pod, error) {
	pod, ok := b.Pods[name]
	if !ok {
		return nil, fmt.Errorf("pod %s is not running", name)
	}

	return pod, nil
}

// Close stops every pod.
func (b *BDDContext) Close() {
	for name, pod := range b.Pods {
		pod.Close()
		delete(b.Pods, name)
	}
}
