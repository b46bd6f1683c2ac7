package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"

	"log/slog"

	"golang.org/x/sync/errgroup"

	"glossa/internal/daemon"
	"glossa/internal/logging"
	"glossa/internal/queue"
)

// ServiceName is the JSON-RPC service prefix shared by server and client.
const ServiceName = "Glossa"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group
}

// NewServer configures the IPC server at the given socket path. The shutdown
// callback is invoked when a client requests daemon shutdown.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger, shutdown func()) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx, shutdown: shutdown}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.group.Go(func() error {
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return nil
				default:
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"),
				)
				continue
			}
			c := conn
			s.group.Go(func() error {
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
				return nil
			})
		}
	})
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	_ = s.group.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"),
		)
	}
}

type service struct {
	daemon   *daemon.Daemon
	logger   *slog.Logger
	ctx      context.Context
	shutdown func()
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.WorkerID = status.WorkerID
	resp.QueueDBPath = status.QueueDBPath
	resp.LockPath = status.LockFilePath
	resp.QueueStats = map[string]int{
		string(queue.StateQueued):    status.QueueStats.Queued,
		string(queue.StateRunning):   status.QueueStats.Running,
		string(queue.StateSucceeded): status.QueueStats.Succeeded,
		string(queue.StateFailed):    status.QueueStats.Failed,
		string(queue.StateCanceled):  status.QueueStats.Canceled,
	}
	return nil
}

func (s *service) Enqueue(req EnqueueRequest, resp *EnqueueResponse) error {
	if req.SourceLang != "" || req.TargetLang != "" {
		if _, err := s.daemon.RegisterJob(s.ctx, req.JobID, req.SourceLang, req.TargetLang, req.NotifyTarget); err != nil {
			return err
		}
	}
	run, created, err := s.daemon.Enqueue(s.ctx, req.JobID, req.NotifyTarget, req.CreatedBy)
	if err != nil {
		return err
	}
	resp.Created = created
	resp.Run = FromRun(run)
	s.log().Info("run enqueued via IPC",
		logging.String(logging.FieldJobID, req.JobID),
		logging.Bool("created", created),
		logging.String(logging.FieldEventType, "run_enqueued"),
	)
	return nil
}

func (s *service) Cancel(req CancelRequest, resp *CancelResponse) error {
	outcome, err := s.daemon.Cancel(s.ctx, req.JobID, req.RequestedBy, req.Reason, queue.ParseCancelMode(req.Mode))
	if err != nil {
		return err
	}
	resp.Action = outcome.Action
	resp.Run = FromRun(outcome.Run)
	s.log().Info("cancel requested via IPC",
		logging.String(logging.FieldJobID, req.JobID),
		logging.String("action", outcome.Action),
		logging.String(logging.FieldEventType, "run_cancel"),
	)
	return nil
}

func (s *service) QueueList(req QueueListRequest, resp *QueueListResponse) error {
	states := make([]queue.State, 0, len(req.States))
	for _, raw := range req.States {
		parsed, ok := queue.ParseState(raw)
		if !ok {
			return fmt.Errorf("unknown state %q", raw)
		}
		states = append(states, parsed)
	}
	runs, err := s.daemon.ListQueue(s.ctx, states)
	if err != nil {
		return err
	}
	resp.Runs = make([]RunInfo, 0, len(runs))
	for _, run := range runs {
		resp.Runs = append(resp.Runs, FromRun(run))
	}
	return nil
}

func (s *service) Describe(req DescribeRequest, resp *DescribeResponse) error {
	jobID := strings.TrimSpace(req.JobID)
	if jobID == "" {
		return errors.New("job_id is required")
	}
	job, err := s.daemon.GetJob(s.ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %q not found", jobID)
	}
	runs, err := s.daemon.RunsForJob(s.ctx, jobID)
	if err != nil {
		return err
	}
	resp.Job = FromJob(job)
	resp.Runs = make([]RunInfo, 0, len(runs))
	for _, run := range runs {
		resp.Runs = append(resp.Runs, FromRun(run))
	}
	return nil
}

func (s *service) QueueClear(req QueueClearRequest, resp *QueueClearResponse) error {
	states := make([]queue.State, 0, len(req.States))
	for _, raw := range req.States {
		parsed, ok := queue.ParseState(raw)
		if !ok {
			return fmt.Errorf("unknown state %q", raw)
		}
		states = append(states, parsed)
	}
	removed, err := s.daemon.ClearFinished(s.ctx, states...)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("queue cleared",
		logging.String(logging.FieldEventType, "queue_clear"),
		logging.Int64("removed_count", removed),
	)
	return nil
}

func (s *service) QueueHealth(_ QueueHealthRequest, resp *QueueHealthResponse) error {
	health, err := s.daemon.QueueHealth(s.ctx)
	if err != nil {
		return err
	}
	resp.Total = health.Total
	resp.Queued = health.Queued
	resp.Running = health.Running
	resp.Succeeded = health.Succeeded
	resp.Failed = health.Failed
	resp.Canceled = health.Canceled
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health := s.daemon.DatabaseHealth(s.ctx)
	resp.DBPath = health.DBPath
	resp.DatabaseExists = health.DatabaseExists
	resp.DatabaseReadable = health.DatabaseReadable
	resp.TableExists = health.TableExists
	resp.ColumnsPresent = append(resp.ColumnsPresent, health.ColumnsPresent...)
	resp.MissingColumns = append(resp.MissingColumns, health.MissingColumns...)
	resp.IntegrityCheck = health.IntegrityCheck
	resp.TotalRuns = health.TotalRuns
	resp.Error = health.Error
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Info("daemon shutdown requested via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"),
	)
	if s.shutdown != nil {
		go s.shutdown()
	}
	resp.Stopped = true
	return nil
}
