package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(ServiceName+"."+method, req, resp)
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Enqueue records a run request for a job.
func (c *Client) Enqueue(req EnqueueRequest) (*EnqueueResponse, error) {
	var resp EnqueueResponse
	if err := c.call("Enqueue", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel asks the active run of a job to stop.
func (c *Client) Cancel(jobID, requestedBy, reason, mode string) (*CancelResponse, error) {
	var resp CancelResponse
	req := CancelRequest{JobID: jobID, RequestedBy: requestedBy, Reason: reason, Mode: mode}
	if err := c.call("Cancel", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueList returns run rows optionally filtered by states.
func (c *Client) QueueList(states []string) (*QueueListResponse, error) {
	var resp QueueListResponse
	if err := c.call("QueueList", QueueListRequest{States: states}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Describe returns a job and its full run history.
func (c *Client) Describe(jobID string) (*DescribeResponse, error) {
	var resp DescribeResponse
	if err := c.call("Describe", DescribeRequest{JobID: jobID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueClear removes terminal rows from the queue.
func (c *Client) QueueClear(states []string) (*QueueClearResponse, error) {
	var resp QueueClearResponse
	if err := c.call("QueueClear", QueueClearRequest{States: states}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueHealth returns aggregate queue diagnostics.
func (c *Client) QueueHealth() (*QueueHealthResponse, error) {
	var resp QueueHealthResponse
	if err := c.call("QueueHealth", QueueHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	var resp DatabaseHealthResponse
	if err := c.call("DatabaseHealth", DatabaseHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.call("TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop asks the daemon process to shut down.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.call("Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
