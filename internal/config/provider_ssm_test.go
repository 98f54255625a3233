package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type mockSSMClient struct {
	batches [][]string
	invalid []string
	err     error
}

func (m *mockSSMClient) GetParameters(_ context.Context, params *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	m.batches = append(m.batches, params.Names)
	if m.err != nil {
		return nil, m.err
	}
	if params.WithDecryption == nil || !*params.WithDecryption {
		return nil, errors.New("decryption not requested")
	}
	out := &ssm.GetParametersOutput{InvalidParameters: m.invalid}
	for _, name := range params.Names {
		out.Parameters = append(out.Parameters, ssmtypes.Parameter{
			Name:  aws.String(name),
			Value: aws.String("value-of-" + name),
		})
	}
	return out, nil
}

func TestSSMProviderSatisfiesSecretProvider(t *testing.T) {
	var _ SecretProvider = NewSSMProvider("us-east-1")
}

func TestSSMProviderBatches(t *testing.T) {
	client := &mockSSMClient{}
	provider := newSSMProviderWithClient("us-east-1", client)

	keys := make([]string, 23)
	for i := range keys {
		keys[i] = fmt.Sprintf("/prod/roofalert/k%02d", i)
	}

	got, err := provider.GetParametersBatch(context.Background(), keys)
	if err != nil {
		t.Fatalf("GetParametersBatch returned error: %v", err)
	}
	if len(client.batches) != 3 {
		t.Fatalf("made %d calls, want 3", len(client.batches))
	}
	if len(client.batches[0]) != 10 || len(client.batches[2]) != 3 {
		t.Errorf("batch sizes = %d, %d, %d", len(client.batches[0]), len(client.batches[1]), len(client.batches[2]))
	}
	if len(got) != 23 || got["/prod/roofalert/k07"] != "value-of-/prod/roofalert/k07" {
		t.Errorf("unexpected result: %v", got)
	}
}

func TestSSMProviderEmptyKeys(t *testing.T) {
	client := &mockSSMClient{}
	got, err := newSSMProviderWithClient("us-east-1", client).GetParametersBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetParametersBatch returned error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil map, got %v", got)
	}
	if len(client.batches) != 0 {
		t.Errorf("SSM called for no keys")
	}
}

func TestSSMProviderInvalidParameters(t *testing.T) {
	client := &mockSSMClient{invalid: []string{"/prod/missing"}}
	_, err := newSSMProviderWithClient("us-east-1", client).GetParametersBatch(context.Background(), []string{"/prod/missing"})
	if err == nil || !strings.Contains(err.Error(), "/prod/missing") {
		t.Fatalf("expected not-found error naming the parameter, got %v", err)
	}
}

func TestSSMProviderClientError(t *testing.T) {
	client := &mockSSMClient{err: errors.New("AccessDeniedException")}
	_, err := newSSMProviderWithClient("us-east-1", client).GetParametersBatch(context.Background(), []string{"/a"})
	if err == nil || !strings.Contains(err.Error(), "AccessDeniedException") {
		t.Fatalf("expected wrapped client error, got %v", err)
	}
}

func TestSSMProviderContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &mockSSMClient{}
	_, err := newSSMProviderWithClient("us-east-1", client).GetParametersBatch(ctx, []string{"/a"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(client.batches) != 0 {
		t.Errorf("SSM called after cancellation")
	}
}

func TestRegionFromEnv(t *testing.T) {
	t.Setenv("AWS_REGION", "")
	if got := RegionFromEnv(); got != "us-east-1" {
		t.Errorf("RegionFromEnv() = %q, want us-east-1", got)
	}
	t.Setenv("AWS_REGION", "eu-west-1")
	if got := RegionFromEnv(); got != "eu-west-1" {
		t.Errorf("RegionFromEnv() = %q, want eu-west-1", got)
	}
}
