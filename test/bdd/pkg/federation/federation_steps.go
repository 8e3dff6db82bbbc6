/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/trustbloc/federation/pkg/entity"
	"github.com/trustbloc/federation/pkg/envelope"
	"github.com/trustbloc/federation/pkg/messages"
	"github.com/trustbloc/federation/test/bdd/pkg/common"
	bddctx "github.com/trustbloc/federation/test/bdd/pkg/context"
)

const (
	receiveTimeout = 10 * time.Second
	pollInterval   = 50 * time.Millisecond

	publicReceivePath = "receive/public"
)

// Steps is steps for federation BDD tests
type Steps struct {
	bddContext *bddctx.BDDContext
	handles    map[string]string
	posts      map[string]*entity.StatusMessage
}

// NewSteps returns BDD test steps for federating pods
func NewSteps(ctx *bddctx.BDDContext) *Steps {
	return &Steps{
		bddContext: ctx,
		handles:    make(map[string]string),
		posts:      make(map[string]*entity.StatusMessage),
	}
}

// RegisterSteps registers federation test steps
func (e *Steps) RegisterSteps(s *godog.Suite) {
	s.Step(`^pod "([^"]*)" is running$`, e.startPod)
	s.Step(`^"([^"]*)" is a local person on pod "([^"]*)"$`, e.createLocalPerson)
	s.Step(`^"([^"]*)" on pod "([^"]*)" discovers "([^"]*)"$`, e.discover)
	s.Step(`^"([^"]*)" publishes the status message "([^"]*)" to pod "([^"]*)"$`, e.publishPublic)
	s.Step(`^"([^"]*)" sends the private status message "([^"]*)" to "([^"]*)"$`, e.sendPrivate)
	s.Step(`^pod "([^"]*)" receives the status message "([^"]*)"$`, e.receivesStatusMessage)
	s.Step(`^pod "([^"]*)" does not serve the status message "([^"]*)"$`, e.doesNotServe)
	s.Step(`^pod "([^"]*)" redirects the fetch of the status message "([^"]*)" to pod "([^"]*)"$`,
		e.redirectsFetch)
	s.Step(`^fetching the status message "([^"]*)" from pod "([^"]*)" returns a signature of "([^"]*)"$`,
		e.fetchVerified)
	s.Step(`^pod "([^"]*)" reports pod "([^"]*)" with status "([^"]*)"$`, e.podStatus)
}

func (e *Steps) startPod(name string) error {
	_, err := e.bddContext.StartPod(name)

	return err
}

func (e *Steps) createLocalPerson(username, podName string) error {
	pod, err := e.bddContext.Pod(podName)
	if err != nil {
		return err
	}

	p, err := pod.Host.EnsureLocalPerson(username)
	if err != nil {
		return err
	}

	e.handles[username] = p.Handle

	return nil
}

func (e *Steps) discover(username, podName, other string) error {
	pod, err := e.bddContext.Pod(podName)
	if err != nil {
		return err
	}

	handle, err := e.handle(other)
	if err != nil {
		return err
	}

	webFinger, err := pod.Client.Discover(context.Background(), handle)
	if err != nil {
		return fmt.Errorf("%s failed to discover %s: %w", username, handle, err)
	}

	if webFinger.Handle() != handle {
		return common.UnexpectedValueError(handle, webFinger.Handle())
	}

	key, err := pod.Host.FetchPublicKeyByHandle(handle)
	if err != nil {
		return err
	}

	if key == nil {
		return fmt.Errorf("public key of %s was not stored", handle)
	}

	return nil
}

func (e *Steps) publishPublic(username, text, podName string) error {
	author, pod, err := e.localAuthor(username)
	if err != nil {
		return err
	}

	target, err := e.bddContext.Pod(podName)
	if err != nil {
		return err
	}

	post := e.newPost(author, text, true)

	if err = pod.Host.PersistEntity(post, "", author); err != nil {
		return err
	}

	key, err := pod.Host.FetchPrivateKeyByHandle(author)
	if err != nil {
		return err
	}

	payload, err := pod.Host.Codec().Envelop(post, key)
	if err != nil {
		return err
	}

	failed := pod.Sender.SendPublic(context.Background(), author, post.Type()+":"+post.GUID(),
		[]string{target.URL() + publicReceivePath}, payload)
	if len(failed) != 0 {
		return fmt.Errorf("delivery to %s failed", strings.Join(failed, ", "))
	}

	return nil
}

func (e *Steps) sendPrivate(username, text, recipient string) error {
	author, pod, err := e.localAuthor(username)
	if err != nil {
		return err
	}

	recipientHandle, err := e.handle(recipient)
	if err != nil {
		return err
	}

	webFinger, err := pod.Client.Discover(context.Background(), recipientHandle)
	if err != nil {
		return err
	}

	recipientKey, err := pod.Host.FetchPublicKeyByHandle(recipientHandle)
	if err != nil {
		return err
	}

	if recipientKey == nil {
		return fmt.Errorf("public key of %s is not known", recipientHandle)
	}

	signingKey, err := pod.Host.FetchPrivateKeyByHandle(author)
	if err != nil {
		return err
	}

	post := e.newPost(author, text, false)

	payload, err := envelope.NewEncryptedCodec(pod.Host.Codec()).Envelop(post, signingKey, recipientKey)
	if err != nil {
		return err
	}

	failed := pod.Sender.SendPrivate(context.Background(), author, post.Type()+":"+post.GUID(),
		map[string][]byte{webFinger.SalmonURL: payload})
	if len(failed) != 0 {
		return fmt.Errorf("private delivery to %s failed", recipientHandle)
	}

	return nil
}

func (e *Steps) receivesStatusMessage(podName, text string) error {
	pod, err := e.bddContext.Pod(podName)
	if err != nil {
		return err
	}

	post, err := e.post(text)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(receiveTimeout)

	for {
		known, err := pod.Host.EntityKnownLocally(post.Type(), post.GUID())
		if err != nil {
			return err
		}

		if known {
			break
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("pod %s did not receive %q within %s", podName, text, receiveTimeout)
		}

		time.Sleep(pollInterval)
	}

	stored, err := pod.Host.EntitiesByAuthor(post.Type(), post.Author())
	if err != nil {
		return err
	}

	for _, s := range stored {
		if s.GUID() != post.GUID() {
			continue
		}

		statusMessage, ok := s.(*entity.StatusMessage)
		if !ok {
			return fmt.Errorf("stored entity has type %T", s)
		}

		if statusMessage.Text != text {
			return common.UnexpectedValueError(text, statusMessage.Text)
		}

		return nil
	}

	return fmt.Errorf("pod %s has no status message %s by %s", podName, post.GUID(), post.Author())
}

func (e *Steps) doesNotServe(podName, text string) error {
	pod, err := e.bddContext.Pod(podName)
	if err != nil {
		return err
	}

	post, err := e.post(text)
	if err != nil {
		return err
	}

	resp, err := noRedirectClient().Get(fetchURL(pod, post))
	if err != nil {
		return err
	}

	defer resp.Body.Close() //nolint: errcheck

	if resp.StatusCode != http.StatusNotFound {
		return common.UnexpectedValueError(strconv.Itoa(http.StatusNotFound), strconv.Itoa(resp.StatusCode))
	}

	_, err = pod.Host.FetchPublicEntity(post.Type(), post.GUID())
	if !errors.Is(err, messages.ErrEntityNotFound) {
		return fmt.Errorf("expected %s but got %v", messages.ErrEntityNotFound, err)
	}

	return nil
}

func (e *Steps) redirectsFetch(podName, text, homePodName string) error {
	pod, err := e.bddContext.Pod(podName)
	if err != nil {
		return err
	}

	homePod, err := e.bddContext.Pod(homePodName)
	if err != nil {
		return err
	}

	post, err := e.post(text)
	if err != nil {
		return err
	}

	resp, err := noRedirectClient().Get(fetchURL(pod, post))
	if err != nil {
		return err
	}

	defer resp.Body.Close() //nolint: errcheck

	if resp.StatusCode != http.StatusFound {
		return common.UnexpectedValueError(strconv.Itoa(http.StatusFound), strconv.Itoa(resp.StatusCode))
	}

	expected := fetchURL(homePod, post)
	if location := resp.Header.Get("Location"); location != expected {
		return common.UnexpectedValueError(expected, location)
	}

	return nil
}

func (e *Steps) fetchVerified(text, podName, username string) error {
	pod, err := e.bddContext.Pod(podName)
	if err != nil {
		return err
	}

	post, err := e.post(text)
	if err != nil {
		return err
	}

	handle, err := e.handle(username)
	if err != nil {
		return err
	}

	data, err := pod.Client.FetchEntity(context.Background(), fetchURL(pod, post))
	if err != nil {
		return err
	}

	authorKey, err := pod.Host.FetchPublicKeyByHandle(handle)
	if err != nil {
		return err
	}

	env, err := pod.Host.Codec().Unenvelop(data, authorKey)
	if err != nil {
		return err
	}

	if env.Entity.GUID() != post.GUID() {
		return common.UnexpectedValueError(post.GUID(), env.Entity.GUID())
	}

	return nil
}

func (e *Steps) podStatus(podName, otherPodName, status string) error {
	pod, err := e.bddContext.Pod(podName)
	if err != nil {
		return err
	}

	other, err := e.bddContext.Pod(otherPodName)
	if err != nil {
		return err
	}

	podStatus, err := pod.Host.PodStatus(other.URL())
	if err != nil {
		return err
	}

	if podStatus == nil {
		return fmt.Errorf("pod %s has no status for pod %s", podName, otherPodName)
	}

	if podStatus.Status != status {
		return common.UnexpectedValueError(status, podStatus.Status)
	}

	return nil
}

func (e *Steps) localAuthor(username string) (string, *bddctx.Pod, error) {
	handle, err := e.handle(username)
	if err != nil {
		return "", nil, err
	}

	for _, pod := range e.bddContext.Pods {
		p, err := pod.Host.Person(handle)
		if err != nil {
			return "", nil, err
		}

		if p != nil && p.Local() {
			return handle, pod, nil
		}
	}

	return "", nil, fmt.Errorf("%s is not a local person on any pod", username)
}

func (e *Steps) newPost(author, text string, public bool) *entity.StatusMessage {
	post := &entity.StatusMessage{
		Handle:    author,
		ID:        entity.NewGUID(),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Public:    public,
		Text:      text,
	}

	e.posts[text] = post

	return post
}

func (e *Steps) handle(username string) (string, error) {
	handle, ok := e.handles[username]
	if !ok {
		return "", fmt.Errorf("%s has not been created", username)
	}

	return handle, nil
}

func (e *Steps) post(text string) (*entity.StatusMessage, error) {
	post, ok := e.posts[text]
	if !ok {
		return nil, fmt.Errorf("no status message %q has been sent", text)
	}

	return post, nil
}

func fetchURL(pod *bddctx.Pod, post *entity.StatusMessage) string {
	return pod.URL() + "fetch/" + post.Type() + "/" + post.GUID()
}

func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
