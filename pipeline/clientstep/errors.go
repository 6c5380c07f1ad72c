package clientstep

import "errors"

// errNoResponse is returned by StreamingUnary when the remote peer closes
// its stream without ever sending a response.
var errNoResponse = errors.New("clientstep: remote stream closed without a response")
