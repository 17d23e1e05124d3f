/*
Package framing offers RFC6242 end-of-message and chunked framing
decoders and encoders.

The decoder functions return bufio.SplitFunc for use with a *bufio.Scanner,
each token being one complete NETCONF message. Framing violations, messages
larger than the configured maximum and input ending other than at the end
of a message are all returned as *ncerr.FramingError.
*/
package framing
