package exec

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	remoteexecution "github.com/bazelbuild/remote-apis/build/bazel/remote/execution/v2"
	"github.com/cenkalti/backoff/v4"
	longrunningpb "google.golang.org/genproto/googleapis/longrunning"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/jbadeau/forge-sub002/internal/taskgraph"
	"github.com/jbadeau/forge-sub002/pkg/forgeerrors"
)

// RemoteOptions configures a RemoteExecutor's connection to a Remote
// Execution API v2 backend.
type RemoteOptions struct {
	Endpoint       string
	InstanceName   string
	UseTLS         bool
	DefaultTimeout time.Duration
	Platform       map[string]string
}

// ActionCacheAPI is the subset of remoteexecution.ActionCacheClient the
// RemoteExecutor calls, narrowed so a fake can stand in for the generated
// client in tests without implementing its full method set.
type ActionCacheAPI interface {
	GetActionResult(ctx context.Context, in *remoteexecution.GetActionResultRequest, opts ...grpc.CallOption) (*remoteexecution.ActionResult, error)
}

// CASAPI is the subset of remoteexecution.ContentAddressableStorageClient
// the RemoteExecutor calls.
type CASAPI interface {
	FindMissingBlobs(ctx context.Context, in *remoteexecution.FindMissingBlobsRequest, opts ...grpc.CallOption) (*remoteexecution.FindMissingBlobsResponse, error)
	BatchUpdateBlobs(ctx context.Context, in *remoteexecution.BatchUpdateBlobsRequest, opts ...grpc.CallOption) (*remoteexecution.BatchUpdateBlobsResponse, error)
}

// ExecuteStream is the subset of the Execute server stream the
// RemoteExecutor reads: the sequence of Operations reporting progress
// toward completion.
type ExecuteStream interface {
	Recv() (*longrunningpb.Operation, error)
}

// ExecutionAPI is the subset of remoteexecution.ExecutionClient the
// RemoteExecutor calls, with its stream narrowed to ExecuteStream.
type ExecutionAPI interface {
	Execute(ctx context.Context, in *remoteexecution.ExecuteRequest, opts ...grpc.CallOption) (ExecuteStream, error)
}

// executionClientAdapter narrows remoteexecution.ExecutionClient's Execute
// method to return ExecuteStream instead of its concrete generated stream
// type, so RemoteExecutor depends only on ExecutionAPI.
type executionClientAdapter struct {
	client remoteexecution.ExecutionClient
}

func (a executionClientAdapter) Execute(ctx context.Context, in *remoteexecution.ExecuteRequest, opts ...grpc.CallOption) (ExecuteStream, error) {
	return a.client.Execute(ctx, in, opts...)
}

// RemoteExecutor drives task execution against an RE v2 backend: action
// construction, an ActionCache probe, CAS blob upload for missing digests,
// and an Execute call streamed to completion.
type RemoteExecutor struct {
	opts RemoteOptions
	conn *grpc.ClientConn

	actionCache ActionCacheAPI
	cas         CASAPI
	execution   ExecutionAPI
}

// DialRemoteExecutor opens a single gRPC channel to opts.Endpoint and
// constructs the ActionCache, CAS, and Execution clients from it.
func DialRemoteExecutor(opts RemoteOptions) (*RemoteExecutor, error) {
	var creds credentials.TransportCredentials
	if opts.UseTLS {
		creds = credentials.NewTLS(nil)
	} else {
		creds = insecure.NewCredentials()
	}

	conn, err := grpc.NewClient(opts.Endpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, forgeerrors.NewInfrastructureError(opts.Endpoint, err)
	}

	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 300 * time.Second
	}

	return &RemoteExecutor{
		opts:        opts,
		conn:        conn,
		actionCache: remoteexecution.NewActionCacheClient(conn),
		cas:         remoteexecution.NewContentAddressableStorageClient(conn),
		execution:   executionClientAdapter{remoteexecution.NewExecutionClient(conn)},
	}, nil
}

// NewRemoteExecutorWithClients builds a RemoteExecutor directly from
// already-constructed ActionCache/CAS/Execution clients, bypassing the gRPC
// dial DialRemoteExecutor performs. It exists so callers can exercise the
// real ExecuteTask pipeline against fakes implementing
// ActionCacheAPI/CASAPI/ExecutionAPI.
func NewRemoteExecutorWithClients(opts RemoteOptions, actionCache ActionCacheAPI, cas CASAPI, execution ExecutionAPI) *RemoteExecutor {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 300 * time.Second
	}
	return &RemoteExecutor{opts: opts, actionCache: actionCache, cas: cas, execution: execution}
}

// Close releases the underlying gRPC channel.
func (e *RemoteExecutor) Close() error {
	if e.conn == nil {
		return nil
	}
	return e.conn.Close()
}

// ExecuteTask runs a single task remotely: builds its Action, probes the
// ActionCache, uploads any missing blobs, and issues Execute on a miss.
func (e *RemoteExecutor) ExecuteTask(ctx context.Context, task taskgraph.Task, inputRoot map[string][]byte) (TaskResult, error) {
	start := time.Now()
	opts := parseCommandOptions(task.Target.Options)

	command := e.buildCommand(opts)
	commandBlob, err := proto.Marshal(command)
	if err != nil {
		return TaskResult{}, forgeerrors.NewExecutionError(task.ID, err)
	}
	commandDigest := digestOf(commandBlob)

	inputRootDigest, inputBlobs := e.buildInputRoot(inputRoot)

	timeout := e.opts.DefaultTimeout
	action := &remoteexecution.Action{
		CommandDigest:   commandDigest,
		InputRootDigest: inputRootDigest,
		Timeout:         durationpb.New(timeout),
		DoNotCache:      !task.Target.Cache,
	}
	actionBlob, err := proto.Marshal(action)
	if err != nil {
		return TaskResult{}, forgeerrors.NewExecutionError(task.ID, err)
	}
	actionDigest := digestOf(actionBlob)

	if result, hit, err := e.probeCache(ctx, actionDigest); err != nil {
		return TaskResult{}, err
	} else if hit {
		return toTaskResult(task.ID, start, result, true), nil
	}

	blobs := map[string][]byte{
		digestKey(commandDigest): commandBlob,
		digestKey(actionDigest):  actionBlob,
	}
	for k, v := range inputBlobs {
		blobs[k] = v
	}
	if err := e.uploadMissingBlobs(ctx, blobs); err != nil {
		return TaskResult{}, err
	}

	result, err := e.execute(ctx, actionDigest, task.ID)
	if err != nil {
		return TaskResult{}, err
	}

	return toTaskResult(task.ID, start, result, false), nil
}

func (e *RemoteExecutor) buildCommand(opts commandOptions) *remoteexecution.Command {
	shell := strings.Join(opts.Commands, " && ")

	envNames := make([]string, 0, len(opts.Env))
	for k := range opts.Env {
		envNames = append(envNames, k)
	}
	sort.Strings(envNames)

	var env []*remoteexecution.Command_EnvironmentVariable
	for _, name := range envNames {
		env = append(env, &remoteexecution.Command_EnvironmentVariable{Name: name, Value: opts.Env[name]})
	}

	return &remoteexecution.Command{
		Arguments:            []string{"sh", "-c", shell},
		EnvironmentVariables: env,
		WorkingDirectory:     opts.Cwd,
	}
}

// buildInputRoot constructs a flat Directory tree from the declared input
// file contents, returning its digest plus the blobs (Directory message and
// file contents) that must exist in CAS before Execute is issued.
func (e *RemoteExecutor) buildInputRoot(files map[string][]byte) (*remoteexecution.Digest, map[string][]byte) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	blobs := make(map[string][]byte, len(files)*2)
	dir := &remoteexecution.Directory{}
	for _, name := range names {
		content := files[name]
		digest := digestOf(content)
		blobs[digestKey(digest)] = content
		dir.Files = append(dir.Files, &remoteexecution.FileNode{Name: name, Digest: digest})
	}

	dirBlob, _ := proto.Marshal(dir)
	dirDigest := digestOf(dirBlob)
	blobs[digestKey(dirDigest)] = dirBlob

	return dirDigest, blobs
}

func digestOf(content []byte) *remoteexecution.Digest {
	sum := sha256.Sum256(content)
	return &remoteexecution.Digest{Hash: hex.EncodeToString(sum[:]), SizeBytes: int64(len(content))}
}

func digestKey(d *remoteexecution.Digest) string {
	return fmt.Sprintf("%s/%d", d.Hash, d.SizeBytes)
}

// probeCache queries the ActionCache for actionDigest, retrying transient
// transport errors with exponential backoff. A NotFound response is a
// normal cache miss, not retried and not an error.
func (e *RemoteExecutor) probeCache(ctx context.Context, actionDigest *remoteexecution.Digest) (*remoteexecution.ActionResult, bool, error) {
	var result *remoteexecution.ActionResult

	op := func() error {
		resp, err := e.actionCache.GetActionResult(ctx, &remoteexecution.GetActionResultRequest{
			InstanceName: e.opts.InstanceName,
			ActionDigest: actionDigest,
		})
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil
			}
			if isTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = resp
		return nil
	}

	if err := backoff.Retry(op, retryPolicy()); err != nil {
		return nil, false, forgeerrors.NewInfrastructureError(e.opts.Endpoint, err)
	}
	return result, result != nil, nil
}

// uploadMissingBlobs asks CAS which of blobs it already has and uploads the
// rest via BatchUpdateBlobs, retrying transient failures.
func (e *RemoteExecutor) uploadMissingBlobs(ctx context.Context, blobs map[string][]byte) error {
	digests := make([]*remoteexecution.Digest, 0, len(blobs))
	for key := range blobs {
		hash, size := splitDigestKey(key)
		digests = append(digests, &remoteexecution.Digest{Hash: hash, SizeBytes: size})
	}

	var missing []*remoteexecution.Digest
	op := func() error {
		resp, err := e.cas.FindMissingBlobs(ctx, &remoteexecution.FindMissingBlobsRequest{
			InstanceName: e.opts.InstanceName,
			BlobDigests:  digests,
		})
		if err != nil {
			if isTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		missing = resp.MissingBlobDigests
		return nil
	}
	if err := backoff.Retry(op, retryPolicy()); err != nil {
		return forgeerrors.NewInfrastructureError(e.opts.Endpoint, err)
	}

	if len(missing) == 0 {
		return nil
	}

	var requests []*remoteexecution.BatchUpdateBlobsRequest_Request
	for _, d := range missing {
		content := blobs[digestKey(d)]
		requests = append(requests, &remoteexecution.BatchUpdateBlobsRequest_Request{Digest: d, Data: content})
	}

	uploadOp := func() error {
		_, err := e.cas.BatchUpdateBlobs(ctx, &remoteexecution.BatchUpdateBlobsRequest{
			InstanceName: e.opts.InstanceName,
			Requests:     requests,
		})
		if err != nil && isTransient(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	if err := backoff.Retry(uploadOp, retryPolicy()); err != nil {
		return forgeerrors.NewInfrastructureError(e.opts.Endpoint, err)
	}
	return nil
}

// execute issues Execute and streams Operations until done, retrying under
// retryPolicy on UNAVAILABLE only while no Operation was reported accepted. Once the
// terminal Operation arrives, its Response (an Any wrapping ExecuteResponse)
// is decoded so the caller gets the worker's actual ActionResult and exit
// code instead of a synthetic placeholder.
func (e *RemoteExecutor) execute(ctx context.Context, actionDigest *remoteexecution.Digest, taskID string) (*remoteexecution.ActionResult, error) {
	accepted := false
	var final *remoteexecution.ExecuteResponse

	op := func() error {
		stream, err := e.execution.Execute(ctx, &remoteexecution.ExecuteRequest{
			InstanceName: e.opts.InstanceName,
			ActionDigest: actionDigest,
		})
		if err != nil {
			if !accepted && status.Code(err) == codes.Unavailable {
				return err
			}
			return backoff.Permanent(err)
		}

		for {
			operation, err := stream.Recv()
			if err == io.EOF {
				return backoff.Permanent(fmt.Errorf("execution stream closed before operation completed"))
			}
			if err != nil {
				if !accepted && status.Code(err) == codes.Unavailable {
					return err
				}
				return backoff.Permanent(err)
			}
			accepted = true
			if !operation.Done {
				continue
			}

			if opErr := operation.GetError(); opErr != nil {
				return backoff.Permanent(status.ErrorProto(opErr))
			}

			resp := &remoteexecution.ExecuteResponse{}
			if err := operation.GetResponse().UnmarshalTo(resp); err != nil {
				return backoff.Permanent(fmt.Errorf("decode ExecuteResponse for %s: %w", taskID, err))
			}
			final = resp
			return nil
		}
	}

	if err := backoff.Retry(op, retryPolicy()); err != nil {
		return nil, forgeerrors.NewExecutionError(taskID, err)
	}
	if s := final.GetStatus(); s != nil && s.GetCode() != 0 {
		return nil, forgeerrors.NewExecutionError(taskID, status.ErrorProto(s))
	}
	return final.GetResult(), nil
}

func isTransient(err error) bool {
	code := status.Code(err)
	return code == codes.Unavailable || code == codes.DeadlineExceeded
}

func retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 4 * time.Second
	// The first try plus 4 retries: at most 5 attempts.
	return backoff.WithMaxRetries(b, 4)
}

func splitDigestKey(key string) (string, int64) {
	idx := strings.LastIndex(key, "/")
	if idx < 0 {
		return key, 0
	}
	hash := key[:idx]
	var size int64
	fmt.Sscanf(key[idx+1:], "%d", &size)
	return hash, size
}

func toTaskResult(taskID string, start time.Time, result *remoteexecution.ActionResult, fromCache bool) TaskResult {
	status := Completed
	if fromCache {
		status = Cached
	}
	exitCode := 0
	if result != nil {
		exitCode = int(result.ExitCode)
		if exitCode != 0 {
			status = Failed
		}
	}
	return TaskResult{
		TaskID:    taskID,
		Status:    status,
		Start:     start,
		End:       time.Now(),
		ExitCode:  exitCode,
		FromCache: fromCache,
	}
}

// contentHash returns the Base64 SHA-256 digest of content, independent of
// the structural task hash computed in taskgraph.computeHash. ExecuteTask
// keys its ActionCache lookup by action digest and does not call it.
func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return base64.StdEncoding.EncodeToString(sum[:])
}
