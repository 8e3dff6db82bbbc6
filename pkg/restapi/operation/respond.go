/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package operation

import (
	"fmt"
	"io"
	"net/http"

	"github.com/trustbloc/federation/pkg/envelope"
	"github.com/trustbloc/federation/pkg/messages"
)

func writeFetchEntityFailure(rw http.ResponseWriter, statusCode int, kind, guid string, errFetch error) {
	if statusCode == http.StatusNotFound {
		logger.Infof(messages.FetchEntityFailure, kind, guid, errFetch)
	} else {
		logger.Errorf(messages.FetchEntityFailure, kind, guid, errFetch)
	}

	rw.WriteHeader(statusCode)

	_, errWrite := rw.Write([]byte(fmt.Sprintf(messages.FetchEntityFailure, kind, guid, errFetch)))
	if errWrite != nil {
		logger.Errorf(messages.FetchEntityFailure+messages.FailWriteResponse, kind, guid, errFetch, errWrite)
	}
}

func writeFetchEntityRedirect(rw http.ResponseWriter, req *http.Request, kind, guid, location string) {
	logger.Debugf(messages.DebugLogEvent, fmt.Sprintf(messages.FetchEntityRedirect, kind, guid, location))

	http.Redirect(rw, req, location, http.StatusFound)
}

func writeFetchEntitySuccess(rw http.ResponseWriter, kind, guid string, envelopeBytes []byte) {
	logger.Debugf(messages.DebugLogEvent, fmt.Sprintf("Serving %s %s", kind, guid))

	rw.Header().Set("Content-Type", envelope.ContentType)

	_, errWrite := rw.Write(envelopeBytes)
	if errWrite != nil {
		logger.Errorf("Serving %s %s."+messages.FailWriteResponse, kind, guid, errWrite)
	}
}

func writeReceiveRequestReadFailure(rw http.ResponseWriter, errBodyRead error) {
	logger.Errorf(messages.ReceiveFailReadRequestBody, errBodyRead)

	rw.WriteHeader(http.StatusInternalServerError)

	_, errWrite := rw.Write([]byte(fmt.Sprintf(messages.ReceiveFailReadRequestBody, errBodyRead)))
	if errWrite != nil {
		logger.Errorf(messages.ReceiveFailReadRequestBody+messages.FailWriteResponse, errBodyRead, errWrite)
	}
}

func writeReceiveMissingPayload(rw http.ResponseWriter) {
	logger.Infof(messages.ReceiveMissingPayload)

	rw.WriteHeader(http.StatusUnprocessableEntity)

	_, errWrite := rw.Write([]byte(messages.ReceiveMissingPayload))
	if errWrite != nil {
		logger.Errorf(messages.ReceiveMissingPayload+messages.FailWriteResponse, errWrite)
	}
}

func writeReceiveUnknownRecipient(rw http.ResponseWriter, guid string) {
	logger.Infof(messages.ReceiveUnknownRecipient, guid)

	rw.WriteHeader(http.StatusNotFound)

	_, errWrite := rw.Write([]byte(fmt.Sprintf(messages.ReceiveUnknownRecipient, guid)))
	if errWrite != nil {
		logger.Errorf(messages.ReceiveUnknownRecipient+messages.FailWriteResponse, guid, errWrite)
	}
}

func writeReceiveQueueFailure(rw http.ResponseWriter, errQueue error, payload []byte) {
	logger.Errorf(messages.ReceiveQueueFailure, errQueue)
	logger.Debugf(messages.DebugLogEventWithReceivedData, fmt.Sprintf(messages.ReceiveQueueFailure, errQueue),
		payload)

	rw.WriteHeader(http.StatusServiceUnavailable)

	_, errWrite := rw.Write([]byte(fmt.Sprintf(messages.ReceiveQueueFailure, errQueue)))
	if errWrite != nil {
		logger.Errorf(messages.ReceiveQueueFailure+messages.FailWriteResponse, errQueue, errWrite)
	}
}

func writeReceiveAccepted(rw http.ResponseWriter, message string, payload []byte) {
	logger.Debugf(messages.DebugLogEventWithReceivedData, message, payload)

	rw.WriteHeader(http.StatusAccepted)
}

func writeWebFingerMissingResource(rw http.ResponseWriter) {
	logger.Infof(messages.WebFingerMissingResource)

	rw.WriteHeader(http.StatusBadRequest)

	_, errWrite := rw.Write([]byte(messages.WebFingerMissingResource))
	if errWrite != nil {
		logger.Errorf(messages.WebFingerMissingResource+messages.FailWriteResponse, errWrite)
	}
}

func writeWebFingerUnknownPerson(rw http.ResponseWriter, resource string) {
	logger.Debugf(messages.DebugLogEvent, fmt.Sprintf(messages.WebFingerUnknownPerson, resource))

	rw.WriteHeader(http.StatusNotFound)

	_, errWrite := rw.Write([]byte(fmt.Sprintf(messages.WebFingerUnknownPerson, resource)))
	if errWrite != nil {
		logger.Errorf(messages.WebFingerUnknownPerson+messages.FailWriteResponse, resource, errWrite)
	}
}

func writeDiscoveryRenderFailure(rw http.ResponseWriter, errRender error) {
	logger.Errorf(messages.DiscoveryRenderFailure, errRender)

	rw.WriteHeader(http.StatusInternalServerError)

	_, errWrite := rw.Write([]byte(fmt.Sprintf(messages.DiscoveryRenderFailure, errRender)))
	if errWrite != nil {
		logger.Errorf(messages.DiscoveryRenderFailure+messages.FailWriteResponse, errRender, errWrite)
	}
}

func writeDiscoveryDocument(rw http.ResponseWriter, contentType string, doc []byte) {
	rw.Header().Set("Content-Type", contentType)

	_, errWrite := rw.Write(doc)
	if errWrite != nil {
		logger.Errorf("Serving %s document."+messages.FailWriteResponse, contentType, errWrite)
	}
}

func writePutLogSpecRequestReadFailure(rw http.ResponseWriter, errBodyRead error) {
	logger.Errorf(messages.PutLogSpecFailReadRequestBody, errBodyRead)

	rw.WriteHeader(http.StatusInternalServerError)

	_, errWrite := rw.Write([]byte(fmt.Sprintf(messages.PutLogSpecFailReadRequestBody, errBodyRead)))
	if errWrite != nil {
		logger.Errorf(messages.PutLogSpecFailReadRequestBody+messages.FailWriteResponse, errBodyRead, errWrite)
	}
}

// Always prints out full debug data at the "error" level, since the method that calls this one is the one
// that allows log levels to be updated. The caller may need the extra information to diagnose the issue, and of course
// won't be able to change the log level to debug until they get this working.
func writeInvalidLogSpec(rw http.ResponseWriter, err error, receivedData []byte) {
	logger.Errorf(messages.DebugLogEventWithReceivedData, fmt.Sprintf(messages.InvalidLogSpec, err), receivedData)

	rw.WriteHeader(http.StatusBadRequest)

	_, errWrite := rw.Write([]byte(fmt.Sprintf(messages.InvalidLogSpec, err)))
	if errWrite != nil {
		logger.Errorf(messages.DebugLogEventWithReceivedData,
			fmt.Sprintf(messages.InvalidLogSpec+messages.FailWriteResponse, err, errWrite), receivedData)
	}
}

func writePutLogSpecSuccess(rw io.Writer, requestBody []byte) {
	_, errWrite := rw.Write([]byte(messages.SetLogSpecSuccess))
	if errWrite != nil {
		logger.Errorf(messages.SetLogSpecSuccess+messages.FailWriteResponse, errWrite)
		logger.Debugf(messages.DebugLogEventWithReceivedData,
			fmt.Sprintf(messages.SetLogSpecSuccess+messages.FailWriteResponse, errWrite), requestBody)
	}
}

func writeGetLogSpecSuccess(rw io.Writer, spec string) {
	_, errWrite := rw.Write([]byte(spec))
	if errWrite != nil {
		logger.Errorf("Current log spec: %s."+messages.FailWriteResponse, spec, errWrite)
	}
}
