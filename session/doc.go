/*
Package session offers a NETCONF Session implementation.

A Session owns one transport.Channel. Open performs the <hello> and
<capabilities> exchange and selects the framing mode; for this we need to
know whether the Session is considered a client or server session (as
their error checking differs). Server sessions are those which have a
non-zero Config.ID value, while client sessions have a zero value in this
field.

Session states

A Session is Negotiating until both hellos have been exchanged, then Open.
A client sending <close-session>, or a server receiving one, moves the
session to Closing. The session is Closed once the close-session reply is
exchanged or the channel fails; every request still pending is then
resolved with *ncerr.SessionClosedError.

Client sessions

Open starts a reader goroutine for client sessions. Send assigns the next
message-id, registers a Pending request and writes the <rpc>; writes from
concurrent callers are serialized. The reader resolves each Pending request
by message-id, in whatever order replies arrive. A reply matching no
pending request is recorded as *ncerr.UnexpectedReplyError in Errors and
dropped. Requests expire with *ncerr.TimeoutError after
Config.RequestTimeout and may be cancelled by the caller. Requests are
never retried.

Notifications are passed to the Config.NotificationSink.

Server sessions

Serve reads requests in the caller's goroutine and passes each to a
Handler. A Handler returning nil completes the request later by calling
SendReply.

Env holds the process-wide state shared by sessions (metrics and clock)
and is passed explicitly to Open.
*/
package session
