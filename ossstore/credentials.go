package ossstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/aliyun/credentials-go/credentials"
)

var errNoCredential = errors.New("阿里云凭证未初始化（RRSA/AK/STS 都不可用）")

// newAlibabaCredential prefers ACK RRSA (OIDC role) when its three variables are injected and
// otherwise falls back to the default credential chain (AK env, profile, instance role).
func newAlibabaCredential(region string) (credentials.Credential, error) {
	roleArn := env("ALIBABA_CLOUD_ROLE_ARN")
	providerArn := env("ALIBABA_CLOUD_OIDC_PROVIDER_ARN")
	tokenFile := env("ALIBABA_CLOUD_OIDC_TOKEN_FILE")
	if roleArn == "" || providerArn == "" || tokenFile == "" {
		return credentials.NewCredential(nil)
	}

	stsEndpoint := env("ALIBABA_CLOUD_STS_ENDPOINT")
	if stsEndpoint == "" {
		stsEndpoint = "sts.aliyuncs.com"
		if r := strings.TrimSpace(region); r != "" {
			stsEndpoint = "sts." + r + ".aliyuncs.com"
		}
	}
	cfg := new(credentials.Config).
		SetType("oidc_role_arn").
		SetRoleArn(roleArn).
		SetOIDCProviderArn(providerArn).
		SetOIDCTokenFilePath(tokenFile).
		SetSTSEndpoint(stsEndpoint)
	return credentials.NewCredential(cfg)
}

// checkCredential fails fast on an empty key pair. Without it the SDK sends anonymous
// requests and OSS answers with a bucket ACL 403 that hides the real cause.
func checkCredential(cred credentials.Credential) error {
	if cred == nil {
		return errNoCredential
	}
	c, err := cred.GetCredential()
	if err != nil {
		return fmt.Errorf("获取阿里云临时凭证失败（检查 RRSA 注入/STS 连通性/NAT）：%w", err)
	}
	if c == nil || strings.TrimSpace(deref(c.AccessKeyId)) == "" || strings.TrimSpace(deref(c.AccessKeySecret)) == "" {
		return errors.New("阿里云凭证为空：请检查 ALIBABA_CLOUD_ROLE_ARN / ALIBABA_CLOUD_OIDC_PROVIDER_ARN / ALIBABA_CLOUD_OIDC_TOKEN_FILE 是否注入")
	}
	return nil
}

// credentialsProvider adapts credentials-go to the OSS SDK provider interface, which
// refreshes STS tokens on every request.
type credentialsProvider struct {
	cred credentials.Credential
}

type staticCredentials struct {
	id, secret, token string
}

func (c staticCredentials) GetAccessKeyID() string     { return c.id }
func (c staticCredentials) GetAccessKeySecret() string { return c.secret }
func (c staticCredentials) GetSecurityToken() string   { return c.token }

func (p *credentialsProvider) GetCredentials() oss.Credentials {
	out, err := p.cred.GetCredential()
	if err != nil || out == nil {
		// The SDK interface has no error return; empty credentials make the request fail.
		return staticCredentials{}
	}
	return staticCredentials{
		id:     deref(out.AccessKeyId),
		secret: deref(out.AccessKeySecret),
		token:  deref(out.SecurityToken),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
