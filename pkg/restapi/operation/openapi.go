/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package operation

// genericError model
//
// swagger:response genericError
type genericError struct { // nolint: unused,deadcode
	// in: body
	ErrMsg string
}

// fetchEntityReq model
//
// swagger:parameters fetchEntityReq
type fetchEntityReq struct { // nolint: unused,deadcode
	// in: path
	// required: true
	Type string `json:"type"`
	// in: path
	// required: true
	GUID string `json:"guid"`
}

// fetchEntityRes model
//
// swagger:response fetchEntityRes
type fetchEntityRes struct { // nolint: unused,deadcode
	// in: body
	MagicEnvelope string
}

// fetchEntityRedirectRes model
//
// swagger:response fetchEntityRedirectRes
type fetchEntityRedirectRes struct { // nolint: unused,deadcode
	Location string
}

// receivePublicReq model
//
// swagger:parameters receivePublicReq
type receivePublicReq struct { // nolint: unused,deadcode
	// The magic envelope, as the raw body or as the form field "xml".
	//
	// in: body
	Envelope string
}

// receivePrivateReq model
//
// swagger:parameters receivePrivateReq
type receivePrivateReq struct { // nolint: unused,deadcode
	// in: path
	// required: true
	GUID string `json:"guid"`
	// The encrypted envelope, as the raw body or as the form field "xml".
	//
	// in: body
	Envelope string
}

// It's empty since the go-swagger OpenAPI generator requires a model to be specified for each defined status
// code (see the handler code in operations.go).

// receiveRes model
//
// swagger:response receiveRes
type receiveRes struct { // nolint: unused,deadcode
}

// webFingerJRDReq model
//
// swagger:parameters webFingerJRDReq
type webFingerJRDReq struct { // nolint: unused,deadcode
	// in: query
	// required: true
	// Example: acct:alice@pod.example.com
	Resource string `json:"resource"`
}

// webFingerXRDReq model
//
// swagger:parameters webFingerXRDReq
type webFingerXRDReq struct { // nolint: unused,deadcode
	// in: query
	// required: true
	// Example: acct:alice@pod.example.com
	Q string `json:"q"`
}

// discoveryRes model
//
// swagger:response discoveryRes
type discoveryRes struct { // nolint: unused,deadcode
	// in: body
	Document string
}

// changeLogSpecReq model
//
// swagger:parameters changeLogSpecReq
type changeLogSpecReq struct { // nolint: unused,deadcode
	// in: body
	Body struct {
		// The new log specification
		//
		// Required: true
		// Example: restapi=debug:federation-receiver=critical:error
		Spec string `json:"spec"`
	}
}

// changeLogSpecRes model
//
// swagger:response changeLogSpecRes
type changeLogSpecRes struct { // nolint: unused,deadcode
}

// getLogSpecRes model
//
// swagger:response getLogSpecRes
type getLogSpecRes struct { // nolint: unused,deadcode
	// in: body
	Spec string
}
