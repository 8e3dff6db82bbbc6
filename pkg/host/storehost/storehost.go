/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package storehost implements the callback host on top of an Aries storage provider.
// People, received entities and pod reachability are kept in three stores; received envelopes are
// processed asynchronously by a pool of receive workers.
package storehost

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/trustbloc/federation/pkg/config"
	"github.com/trustbloc/federation/pkg/discovery"
	"github.com/trustbloc/federation/pkg/entity"
	"github.com/trustbloc/federation/pkg/envelope"
	"github.com/trustbloc/federation/pkg/keyutil"
	"github.com/trustbloc/federation/pkg/messages"
	"github.com/trustbloc/federation/pkg/receiver"
	"github.com/trustbloc/federation/pkg/resolver"
)

const (
	logModuleName = "federation-storehost"

	// PeopleStoreName is the name of the store that holds known people.
	PeopleStoreName = "people"
	// EntitiesStoreName is the name of the store that holds received entities.
	EntitiesStoreName = "entities"
	// PodsStoreName is the name of the store that holds pod reachability.
	PodsStoreName = "pods"

	guidTagName   = "guid"
	kindTagName   = "kind"
	authorTagName = "author"

	defaultQueueSize = 100
	queryPageSize    = 10
)

var logger = log.New(logModuleName)

// Discoverer looks up the WebFinger profile of a remote person.
type Discoverer interface {
	Discover(ctx context.Context, handle string) (*discovery.WebFinger, error)
}

// Person is a person known to this pod. Local people have a private key.
type Person struct {
	Handle     string `json:"handle"`
	GUID       string `json:"guid"`
	PodURL     string `json:"podUrl"`
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey,omitempty"`
}

// Local reports whether the person lives on this pod.
func (p *Person) Local() bool {
	return p.PrivateKey != ""
}

// Username returns the local part of the handle.
func (p *Person) Username() string {
	username, _, _ := strings.Cut(p.Handle, "@")

	return username
}

type entityRecord struct {
	Kind       string   `json:"kind"`
	GUID       string   `json:"guid"`
	Author     string   `json:"author"`
	XML        string   `json:"xml"`
	Public     bool     `json:"public"`
	Recipients []string `json:"recipients,omitempty"`
	Sender     string   `json:"sender"`
}

// PodStatus is the last reported reachability of a pod.
type PodStatus struct {
	URL       string    `json:"url"`
	Status    string    `json:"status"`
	CheckedAt time.Time `json:"checkedAt"`
}

type job struct {
	recipientID string
	data        []byte
}

// Host is a callback host backed by an Aries storage provider.
type Host struct {
	cfg          *config.Federation
	codec        *envelope.Codec
	peopleStore  storage.Store
	entityStore  storage.Store
	podStore     storage.Store
	discoverer   Discoverer
	resolver     *resolver.Resolver
	receiverOpts []receiver.Option
	keySize      int

	publicKeys  map[string]*rsa.PublicKey
	privateKeys map[string]*rsa.PrivateKey
	keysMutex   sync.RWMutex

	entityMutex sync.Mutex

	queue chan job
	wg    sync.WaitGroup
}

// Option configures a Host.
type Option func(h *Host)

// WithCodec sets the envelope codec used by the receive workers and the reference resolver.
func WithCodec(codec *envelope.Codec) Option {
	return func(h *Host) {
		h.codec = codec
	}
}

// WithDiscoverer enables WebFinger discovery of people who aren't known yet.
func WithDiscoverer(d Discoverer) Option {
	return func(h *Host) {
		h.discoverer = d
	}
}

// WithReceiverOptions passes options to the receivers run by the receive workers.
func WithReceiverOptions(opts ...receiver.Option) Option {
	return func(h *Host) {
		h.receiverOpts = append(h.receiverOpts, opts...)
	}
}

// WithQueueSize sets the capacity of the receive queue.
func WithQueueSize(size int) Option {
	return func(h *Host) {
		if size > 0 {
			h.queue = make(chan job, size)
		}
	}
}

// WithKeySize sets the size of the keys generated for new local people.
func WithKeySize(bits int) Option {
	return func(h *Host) {
		h.keySize = bits
	}
}

// New opens the host's stores in provider.
// If fetcher is not nil, references in received status messages are resolved through it.
func New(provider storage.Provider, cfg *config.Federation, fetcher resolver.Fetcher,
	opts ...Option) (*Host, error) {
	h := &Host{
		cfg:         cfg,
		keySize:     keyutil.DefaultKeySize,
		publicKeys:  make(map[string]*rsa.PublicKey),
		privateKeys: make(map[string]*rsa.PrivateKey),
		queue:       make(chan job, defaultQueueSize),
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.codec == nil {
		h.codec = envelope.NewCodec(entity.DefaultRegistry(),
			envelope.WithLegacyAlgorithm(cfg.LegacySignatureAlgorithm))
	}

	h.receiverOpts = append([]receiver.Option{receiver.WithCodec(h.codec)}, h.receiverOpts...)

	var err error

	h.peopleStore, err = openStore(provider, PeopleStoreName, guidTagName)
	if err != nil {
		return nil, err
	}

	h.entityStore, err = openStore(provider, EntitiesStoreName, kindTagName, authorTagName)
	if err != nil {
		return nil, err
	}

	h.podStore, err = openStore(provider, PodsStoreName)
	if err != nil {
		return nil, err
	}

	if fetcher != nil {
		h.resolver = resolver.New(h, fetcher,
			resolver.WithCodec(h.codec),
			resolver.WithConcurrency(cfg.FetchConcurrency),
			resolver.WithReceiverOptions(h.receiverOpts...))
	}

	return h, nil
}

// Codec returns the magic envelope codec the host receives and serves with.
func (h *Host) Codec() *envelope.Codec {
	return h.codec
}

func openStore(provider storage.Provider, name string, tagNames ...string) (storage.Store, error) {
	// The store must be open before its configuration can be set.
	store, err := provider.OpenStore(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", name, err)
	}

	if len(tagNames) > 0 {
		err = provider.SetStoreConfig(name, storage.StoreConfiguration{TagNames: tagNames})
		if err != nil {
			return nil, fmt.Errorf("failed to set %s store configuration: %w", name, err)
		}
	}

	return store, nil
}

// EnsureLocalPerson returns the local person with the given username, creating it if it doesn't exist.
func (h *Host) EnsureLocalPerson(username string) (*Person, error) {
	handle, err := h.localHandle(username)
	if err != nil {
		return nil, err
	}

	p, err := h.Person(handle)
	if err != nil {
		return nil, err
	}

	if p != nil {
		if !p.Local() {
			return nil, fmt.Errorf("%s is a remote person: %w", handle, messages.ErrInvalidData)
		}

		return p, nil
	}

	return h.CreateLocalPerson(username)
}

// CreateLocalPerson creates a person with a new key pair on this pod.
func (h *Host) CreateLocalPerson(username string) (*Person, error) {
	handle, err := h.localHandle(username)
	if err != nil {
		return nil, err
	}

	key, err := keyutil.GenerateKey(h.keySize)
	if err != nil {
		return nil, err
	}

	publicKey, err := keyutil.EncodePublicKeyPEM(&key.PublicKey)
	if err != nil {
		return nil, err
	}

	p := &Person{
		Handle:     handle,
		GUID:       entity.NewGUID(),
		PodURL:     h.cfg.ServerURL(),
		PublicKey:  publicKey,
		PrivateKey: keyutil.EncodePrivateKeyPEM(key),
	}

	if err := h.AddPerson(p); err != nil {
		return nil, err
	}

	return p, nil
}

func (h *Host) localHandle(username string) (string, error) {
	if username == "" || strings.ContainsAny(username, "@/ ") {
		return "", fmt.Errorf("invalid username %q: %w", username, messages.ErrInvalidData)
	}

	serverURL, err := url.Parse(h.cfg.ServerURL())
	if err != nil {
		return "", fmt.Errorf("failed to parse server URI: %s: %w", err, messages.ErrConfiguration)
	}

	return username + "@" + serverURL.Host, nil
}

// AddPerson stores a person, replacing any person with the same handle.
func (h *Host) AddPerson(p *Person) error {
	if p.Handle == "" || p.GUID == "" {
		return fmt.Errorf("person needs a handle and a GUID: %w", messages.ErrInvalidData)
	}

	if _, err := keyutil.ParsePublicKey(p.PublicKey); err != nil {
		return fmt.Errorf("public key of %s: %s: %w", p.Handle, err, messages.ErrInvalidData)
	}

	if p.Local() {
		if _, err := keyutil.ParsePrivateKeyPEM(p.PrivateKey); err != nil {
			return fmt.Errorf("private key of %s: %s: %w", p.Handle, err, messages.ErrInvalidData)
		}
	}

	personBytes, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal person: %w", err)
	}

	err = h.peopleStore.Put(p.Handle, personBytes, storage.Tag{Name: guidTagName, Value: p.GUID})
	if err != nil {
		return fmt.Errorf("failed to store person %s: %w", p.Handle, err)
	}

	h.keysMutex.Lock()
	delete(h.publicKeys, p.Handle)
	delete(h.privateKeys, p.GUID)
	delete(h.privateKeys, p.Handle)
	h.keysMutex.Unlock()

	logger.Debugf("Stored person %s (%s)", p.Handle, p.GUID)

	return nil
}

// Person returns the person with the given handle, or nil if the person is not known.
func (h *Host) Person(handle string) (*Person, error) {
	personBytes, err := h.peopleStore.Get(handle)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to get person %s: %w", handle, err)
	}

	var p Person

	if err := json.Unmarshal(personBytes, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal person %s: %w", handle, err)
	}

	return &p, nil
}

// PersonByGUID returns the person with the given GUID, or nil if the person is not known.
func (h *Host) PersonByGUID(guid string) (*Person, error) {
	iterator, err := h.peopleStore.Query(guidTagName+":"+guid, storage.WithPageSize(queryPageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to query people store: %w", err)
	}

	defer storage.Close(iterator, logger)

	more, err := iterator.Next()
	if err != nil {
		return nil, err
	}

	if !more {
		return nil, nil
	}

	personBytes, err := iterator.Value()
	if err != nil {
		return nil, err
	}

	var p Person

	if err := json.Unmarshal(personBytes, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal person %s: %w", guid, err)
	}

	return &p, nil
}

// lookupPerson returns a known person, discovering unknown people when a discoverer is set.
func (h *Host) lookupPerson(handle string) (*Person, error) {
	p, err := h.Person(handle)
	if err != nil || p != nil || h.discoverer == nil {
		return p, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.HTTPTimeout)
	defer cancel()

	wf, err := h.discoverer.Discover(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("failed to discover %s: %w", handle, err)
	}

	p = &Person{
		Handle:    handle,
		GUID:      wf.GUID,
		PodURL:    wf.SeedURL,
		PublicKey: wf.PublicKey,
	}

	if err := h.AddPerson(p); err != nil {
		return nil, err
	}

	return p, nil
}

// FetchPublicKeyByHandle returns the public key of a person, discovering the person if needed.
func (h *Host) FetchPublicKeyByHandle(handle string) (*rsa.PublicKey, error) {
	h.keysMutex.RLock()
	key, ok := h.publicKeys[handle]
	h.keysMutex.RUnlock()

	if ok {
		return key, nil
	}

	p, err := h.lookupPerson(handle)
	if err != nil || p == nil {
		return nil, err
	}

	key, err = keyutil.ParsePublicKey(p.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("public key of %s: %w", handle, err)
	}

	h.keysMutex.Lock()
	h.publicKeys[handle] = key
	h.keysMutex.Unlock()

	return key, nil
}

// FetchPrivateKeyByRecipientID returns the private key of the local person with the given GUID.
func (h *Host) FetchPrivateKeyByRecipientID(recipientID string) (*rsa.PrivateKey, error) {
	return h.privateKey(recipientID, h.PersonByGUID)
}

// FetchPrivateKeyByHandle returns the private key of the local person with the given handle.
func (h *Host) FetchPrivateKeyByHandle(handle string) (*rsa.PrivateKey, error) {
	return h.privateKey(handle, h.Person)
}

func (h *Host) privateKey(id string, lookup func(string) (*Person, error)) (*rsa.PrivateKey, error) {
	h.keysMutex.RLock()
	key, ok := h.privateKeys[id]
	h.keysMutex.RUnlock()

	if ok {
		return key, nil
	}

	p, err := lookup(id)
	if err != nil || p == nil || !p.Local() {
		return nil, err
	}

	key, err = keyutil.ParsePrivateKeyPEM(p.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("private key of %s: %w", p.Handle, err)
	}

	h.keysMutex.Lock()
	h.privateKeys[id] = key
	h.keysMutex.Unlock()

	return key, nil
}

// EntityKnownLocally reports whether an entity of the given kind and GUID has been stored.
func (h *Host) EntityKnownLocally(kind, guid string) (bool, error) {
	_, err := h.entityStore.Get(entityKey(kind, guid))
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("failed to get entity %s %s: %w", kind, guid, err)
	}

	return true, nil
}

// PersistEntity stores a verified entity. A private entity received again for another recipient
// adds that recipient to the stored entity.
func (h *Host) PersistEntity(e entity.Entity, recipientID, senderHandle string) error {
	xmlBytes, err := h.codec.Registry().Marshal(e)
	if err != nil {
		return err
	}

	h.entityMutex.Lock()
	defer h.entityMutex.Unlock()

	record, err := h.entityRecord(e.Type(), e.GUID())
	if err != nil && !errors.Is(err, messages.ErrEntityNotFound) {
		return err
	}

	if record == nil {
		record = &entityRecord{Kind: e.Type(), GUID: e.GUID(), Author: e.Author()}
	}

	if record.Author != e.Author() {
		err = fmt.Errorf("%s %s of %s sent by %s as %s: %w", e.Type(), e.GUID(), record.Author, senderHandle,
			e.Author(), messages.ErrSignatureInvalid)

		logger.Errorf(messages.SignatureInvalidSecurityEvent, senderHandle, err)

		return err
	}

	record.XML = string(xmlBytes)
	record.Sender = senderHandle

	switch {
	case recipientID == "":
		record.Public = isPublic(e)
	case !contains(record.Recipients, recipientID):
		record.Recipients = append(record.Recipients, recipientID)
	}

	recordBytes, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal entity record: %w", err)
	}

	return h.entityStore.Put(entityKey(e.Type(), e.GUID()), recordBytes,
		storage.Tag{Name: kindTagName, Value: e.Type()},
		storage.Tag{Name: authorTagName, Value: e.Author()})
}

// FetchPublicEntity returns a stored public entity.
func (h *Host) FetchPublicEntity(kind, guid string) (entity.Entity, error) {
	record, err := h.entityRecord(kind, guid)
	if err != nil {
		return nil, err
	}

	if !record.Public {
		return nil, fmt.Errorf("%s %s is not public: %w", kind, guid, messages.ErrEntityNotFound)
	}

	return h.codec.Registry().Unmarshal([]byte(record.XML))
}

// EntitiesByAuthor returns the stored entities of the given kind written by author.
func (h *Host) EntitiesByAuthor(kind, author string) ([]entity.Entity, error) {
	iterator, err := h.entityStore.Query(authorTagName+":"+author, storage.WithPageSize(queryPageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to query entity store: %w", err)
	}

	defer storage.Close(iterator, logger)

	var entities []entity.Entity

	more, err := iterator.Next()

	for ; err == nil && more; more, err = iterator.Next() {
		recordBytes, valueErr := iterator.Value()
		if valueErr != nil {
			return nil, valueErr
		}

		var record entityRecord

		if err := json.Unmarshal(recordBytes, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entity record: %w", err)
		}

		if record.Kind != kind {
			continue
		}

		e, unmarshalErr := h.codec.Registry().Unmarshal([]byte(record.XML))
		if unmarshalErr != nil {
			return nil, unmarshalErr
		}

		entities = append(entities, e)
	}

	if err != nil {
		return nil, err
	}

	return entities, nil
}

func (h *Host) entityRecord(kind, guid string) (*entityRecord, error) {
	recordBytes, err := h.entityStore.Get(entityKey(kind, guid))
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("%s %s: %w", kind, guid, messages.ErrEntityNotFound)
		}

		return nil, fmt.Errorf("failed to get entity %s %s: %w", kind, guid, err)
	}

	var record entityRecord

	if err := json.Unmarshal(recordBytes, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity record: %w", err)
	}

	return &record, nil
}

// ResolveFetchURL returns the URL of path on the home pod of authorHandle.
func (h *Host) ResolveFetchURL(authorHandle, path string) (string, error) {
	p, err := h.lookupPerson(authorHandle)
	if err != nil {
		return "", err
	}

	if p == nil {
		return "", fmt.Errorf("%s: %w", authorHandle, messages.ErrPersonNotFound)
	}

	podURL := p.PodURL
	if p.Local() {
		podURL = h.cfg.ServerURL()
	}

	if podURL == "" {
		return "", fmt.Errorf("pod of %s is not known: %w", authorHandle, messages.ErrInvalidData)
	}

	return strings.TrimSuffix(podURL, "/") + "/" + strings.TrimPrefix(path, "/"), nil
}

// ReportPodReachability records the last delivery status of the pod that serves effectiveURL.
func (h *Host) ReportPodReachability(effectiveURL, status string) {
	key := podKey(effectiveURL)

	statusBytes, err := json.Marshal(PodStatus{URL: effectiveURL, Status: status, CheckedAt: time.Now().UTC()})
	if err != nil {
		logger.Errorf("Failed to marshal status of pod %s: %s", key, err)

		return
	}

	if err := h.podStore.Put(key, statusBytes); err != nil {
		logger.Errorf("Failed to store status of pod %s: %s", key, err)
	}
}

// PodStatus returns the last reported status of the pod at podURL, or nil if none was reported.
func (h *Host) PodStatus(podURL string) (*PodStatus, error) {
	statusBytes, err := h.podStore.Get(podKey(podURL))
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to get pod status: %w", err)
	}

	var status PodStatus

	if err := json.Unmarshal(statusBytes, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pod status: %w", err)
	}

	return &status, nil
}

// LocalPerson returns the WebFinger profile of a local person, or nil if the handle isn't local.
func (h *Host) LocalPerson(handle string) (*discovery.WebFinger, error) {
	p, err := h.Person(strings.TrimPrefix(handle, "acct:"))
	if err != nil || p == nil || !p.Local() {
		return nil, err
	}

	server := h.cfg.ServerURL()

	return &discovery.WebFinger{
		AcctURI:    discovery.AcctURI(p.Handle),
		AliasURL:   server + "people/" + p.GUID,
		HcardURL:   server + "hcard/users/" + p.GUID,
		SeedURL:    server,
		ProfileURL: server + "u/" + p.Username(),
		AtomURL:    server + "public/" + p.Username() + ".atom",
		SalmonURL:  server + "receive/users/" + p.GUID,
		GUID:       p.GUID,
		PublicKey:  p.PublicKey,
	}, nil
}

func entityKey(kind, guid string) string {
	return kind + ":" + guid
}

func podKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}

	return u.Scheme + "://" + u.Host
}

func isPublic(e entity.Entity) bool {
	if p, ok := e.(entity.Publishable); ok {
		return p.IsPublic()
	}

	return true
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}

	return false
}
