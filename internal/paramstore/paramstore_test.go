package paramstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type fakeSSM struct {
	out  *ssm.GetParameterOutput
	err  error
	last *ssm.GetParameterInput
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.last = in
	return f.out, f.err
}

func TestNew_RejectsNil(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("expected error for nil api")
	}
}

func TestGetParameter(t *testing.T) {
	api := &fakeSSM{out: &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String("secret")}}}
	c, _ := New(api)
	v, err := c.GetParameter(context.Background(), " /kwlq/openai_api_key ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "secret" {
		t.Errorf("expected secret, got %q", v)
	}
	if aws.ToString(api.last.Name) != "/kwlq/openai_api_key" || !aws.ToBool(api.last.WithDecryption) {
		t.Errorf("unexpected input: %+v", api.last)
	}
}

func TestGetParameter_Errors(t *testing.T) {
	c, _ := New(&fakeSSM{err: errors.New("access denied")})
	if _, err := c.GetParameter(context.Background(), "x"); err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Errorf("expected wrapped error, got %v", err)
	}
	if _, err := c.GetParameter(context.Background(), "  "); err == nil {
		t.Error("expected error for blank name")
	}
	c, _ = New(&fakeSSM{out: &ssm.GetParameterOutput{}})
	if _, err := c.GetParameter(context.Background(), "x"); err == nil {
		t.Error("expected error for missing value")
	}
}
